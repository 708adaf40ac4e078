package capture

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cybre/beatviz/internal/beat"
	"github.com/cybre/beatviz/internal/dsp"
)

// DefaultStaleAfter is how long the analyser waits for audio before it treats
// the input as lost.
const DefaultStaleAfter = 2 * time.Second

// AnalyserOptions configures an Analyser.
type AnalyserOptions struct {
	Spectrum   dsp.SpectrumOptions
	StaleAfter time.Duration
	// Now overrides the clock; tests use it to simulate device loss.
	Now func() time.Time
}

// Analyser keeps the newest FFTSize mono samples written by the capture
// callback and turns them into a byte spectrum on demand. Write and
// CurrentFrame may be called from different goroutines.
type Analyser struct {
	mu sync.Mutex

	spectrum   *dsp.SpectrumAnalyser
	ring       []float64
	pos        int
	block      []float64
	frame      []uint8
	staleAfter time.Duration
	now        func() time.Time

	opened    time.Time
	lastWrite time.Time
	closed    bool
}

var _ beat.FrameSource = (*Analyser)(nil)

// NewAnalyser builds an Analyser. The staleness clock starts immediately.
func NewAnalyser(opts AnalyserOptions) (*Analyser, error) {
	spectrum, err := dsp.NewSpectrumAnalyser(opts.Spectrum)
	if err != nil {
		return nil, eris.Wrap(err, "configure spectrum analyser")
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	size := spectrum.FFTSize()
	return &Analyser{
		spectrum:   spectrum,
		ring:       make([]float64, size),
		block:      make([]float64, size),
		frame:      make([]uint8, spectrum.BinCount()),
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		opened:     opts.Now(),
	}, nil
}

// Write appends mono samples. Writes after Close are ignored.
func (a *Analyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	if len(samples) > len(a.ring) {
		samples = samples[len(samples)-len(a.ring):]
	}
	for _, v := range samples {
		a.ring[a.pos] = v
		a.pos = (a.pos + 1) % len(a.ring)
	}
	a.lastWrite = a.now()
}

// CurrentFrame returns the spectrum of the most recent samples. Before the
// first write it describes silence. The returned frame is reused by the next
// call.
func (a *Analyser) CurrentFrame() (beat.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.healthLocked(); err != nil {
		return nil, err
	}

	n := copy(a.block, a.ring[a.pos:])
	copy(a.block[n:], a.ring[:a.pos])
	a.frame = a.spectrum.ByteFrequencyData(a.block, a.frame)

	return beat.Frame(a.frame), nil
}

// Healthy reports whether the analyser is still receiving audio.
func (a *Analyser) Healthy() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.healthLocked()
}

// BinCount is the fixed frame length.
func (a *Analyser) BinCount() int {
	return a.spectrum.BinCount()
}

// Close marks the analyser as closed; later reads fail.
func (a *Analyser) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

func (a *Analyser) healthLocked() error {
	if a.closed {
		return eris.Wrap(beat.ErrCaptureUnavailable, "capture stream closed")
	}

	last := a.lastWrite
	if last.IsZero() {
		last = a.opened
	}
	if idle := a.now().Sub(last); idle > a.staleAfter {
		return eris.Wrapf(beat.ErrCaptureUnavailable, "no audio received for %s", idle.Round(time.Millisecond))
	}

	return nil
}
