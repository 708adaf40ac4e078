// Package session ties capture, beat detection, the reaction policy and the
// renderers together and drives them at a fixed frame rate.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cybre/beatviz/internal/beat"
	"github.com/cybre/beatviz/internal/observe"
	"github.com/cybre/beatviz/internal/reaction"
)

const (
	DefaultFrameRate     = 60
	DefaultRetryInterval = time.Second

	// invalidLogInterval bounds how often invalid frames are logged.
	invalidLogInterval = time.Second
)

// Frame is one rendered step of the session.
type Frame struct {
	Seq    uint64         `json:"seq"`
	At     time.Time      `json:"at"`
	Result beat.Result    `json:"result"`
	State  reaction.State `json:"state"`
}

// Renderer consumes frames and out-of-band notices such as capture loss.
type Renderer interface {
	Render(ctx context.Context, frame Frame) error
	Notice(ctx context.Context, msg string)
}

// Source is the capture collaborator seen by the session. Close releases it.
type Source interface {
	beat.FrameSource
	io.Closer
}

type Options struct {
	Source    Source
	Detector  *beat.Detector
	Policy    *reaction.Policy
	Renderers []Renderer
	Metrics   *observe.Metrics
	Logger    *slog.Logger

	FrameRate     int
	RetryInterval time.Duration
	Now           func() time.Time
}

// Session is the aggregate a process runs. It is driven by a single goroutine.
type Session struct {
	source    Source
	detector  *beat.Detector
	policy    *reaction.Policy
	renderers []Renderer
	metrics   *observe.Metrics
	logger    *slog.Logger

	frameInterval time.Duration
	retryInterval time.Duration
	now           func() time.Time

	seq    uint64
	beats  uint64
	paused atomic.Bool

	invalidLoggedAt time.Time
	invalidSkipped  int
}

func New(opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, eris.New("session needs a capture source")
	}
	if opts.Detector == nil {
		return nil, eris.New("session needs a beat detector")
	}
	if opts.Policy == nil {
		opts.Policy = reaction.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		source:        opts.Source,
		detector:      opts.Detector,
		policy:        opts.Policy,
		renderers:     opts.Renderers,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		frameInterval: time.Second / time.Duration(opts.FrameRate),
		retryInterval: opts.RetryInterval,
		now:           opts.Now,
	}, nil
}

// Step runs one detection, maps it through the policy and hands the frame to
// every renderer. Detection errors are returned untouched and nothing is
// rendered for that step.
func (s *Session) Step(ctx context.Context) (Frame, error) {
	res, err := s.detector.Detect()
	if err != nil {
		switch {
		case eris.Is(err, beat.ErrCaptureUnavailable):
			s.metrics.RecordCaptureError(ctx)
		case eris.Is(err, beat.ErrInvalidInput):
			s.metrics.RecordInvalidFrame(ctx)
		}
		return Frame{}, err
	}

	s.seq++
	if res.Beat {
		s.beats++
	}
	s.metrics.RecordFrame(ctx, res.Beat, res.Energy)

	frame := Frame{
		Seq:    s.seq,
		At:     s.now(),
		Result: res,
		State:  s.policy.React(res.Beat, res.Energy),
	}

	for _, r := range s.renderers {
		if err := r.Render(ctx, frame); err != nil {
			name := rendererName(r)
			s.metrics.RecordRenderError(ctx, name)
			s.logger.Warn("renderer failed", slog.String("renderer", name), slog.Any("err", err))
		}
	}

	return frame, nil
}

// Run steps at the configured frame rate until ctx is cancelled. Capture
// loss pauses detection; the source is polled again every retry interval and
// detection resumes on the first good frame.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	s.logger.Info("session started",
		slog.Duration("frame_interval", s.frameInterval),
		slog.Float64("sensitivity", s.detector.Sensitivity()),
		slog.Int("history", s.detector.History().Cap()))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", slog.Uint64("frames", s.seq), slog.Uint64("beats", s.beats))
			return nil
		case <-ticker.C:
		}

		_, err := s.Step(ctx)
		switch {
		case err == nil:
		case eris.Is(err, beat.ErrInvalidInput):
			s.reportInvalid(err)
		case eris.Is(err, beat.ErrEmptyHistory):
		case eris.Is(err, beat.ErrCaptureUnavailable):
			if err := s.waitForCapture(ctx, ticker, err); err != nil {
				return nil
			}
		default:
			return eris.Wrap(err, "frame step")
		}
	}
}

// waitForCapture pauses the loop until the source produces a frame again.
// It returns ctx.Err() when cancelled while paused.
func (s *Session) waitForCapture(ctx context.Context, ticker *time.Ticker, cause error) error {
	s.setPaused(ctx, true)
	s.logger.Warn("capture unavailable, pausing detection", slog.Any("err", cause))
	s.notify(ctx, fmt.Sprintf("%v; retrying every %s", cause, s.retryInterval))

	ticker.Reset(s.retryInterval)
	defer ticker.Reset(s.frameInterval)

	for {
		select {
		case <-ctx.Done():
			s.setPaused(ctx, false)
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := s.source.CurrentFrame(); err != nil {
			s.metrics.RecordCaptureError(ctx)
			s.logger.Debug("capture still unavailable", slog.Any("err", err))
			continue
		}

		s.setPaused(ctx, false)
		s.logger.Info("capture resumed")
		s.notify(ctx, "audio capture resumed")
		return nil
	}
}

// reportInvalid warns about an invalid frame at most once per
// invalidLogInterval, counting the frames skipped in between.
func (s *Session) reportInvalid(err error) {
	now := s.now()
	if !s.invalidLoggedAt.IsZero() && now.Sub(s.invalidLoggedAt) < invalidLogInterval {
		s.invalidSkipped++
		return
	}
	s.logger.Warn("skipping invalid frame", slog.Any("err", err), slog.Int("suppressed", s.invalidSkipped))
	s.invalidLoggedAt = now
	s.invalidSkipped = 0
}

// Paused reports whether detection is waiting for capture.
func (s *Session) Paused() bool {
	return s.paused.Load()
}

func (s *Session) setPaused(ctx context.Context, paused bool) {
	if s.paused.Swap(paused) != paused {
		s.metrics.SetPaused(ctx, paused)
	}
}

func (s *Session) notify(ctx context.Context, msg string) {
	for _, r := range s.renderers {
		r.Notice(ctx, msg)
	}
}

// Close releases the capture source and every renderer that can be closed.
func (s *Session) Close() error {
	errs := []error{s.source.Close()}
	for _, r := range s.renderers {
		if c, ok := r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func rendererName(r Renderer) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}
