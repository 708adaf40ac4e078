package beat

import (
	"math"

	"github.com/rotisserie/eris"
)

// DefaultSensitivity is the multiplier applied to the rolling baseline.
const DefaultSensitivity = 1.5

// FrameSource supplies the most recent spectrum snapshot. Implementations must
// not block; returning the last known frame is acceptable.
type FrameSource interface {
	CurrentFrame() (Frame, error)
}

// Result describes the decision taken for one frame.
type Result struct {
	Beat      bool    `json:"beat"`
	Energy    float64 `json:"energy"`
	Baseline  float64 `json:"baseline"`
	Threshold float64 `json:"threshold"`
}

// Option tunes a Detector at construction time.
type Option func(*detectorOptions)

type detectorOptions struct {
	sensitivity float64
	historySize int
}

// WithSensitivity sets the baseline multiplier. It must be finite and positive.
func WithSensitivity(s float64) Option {
	return func(o *detectorOptions) {
		o.sensitivity = s
	}
}

// WithHistorySize sets how many energy values form the baseline.
func WithHistorySize(n int) Option {
	return func(o *detectorOptions) {
		o.historySize = n
	}
}

// Detector compares each frame's energy against a rolling mean of recent
// energies. The current frame's energy is pushed before the mean is taken, so
// the baseline includes the frame being judged.
//
// There is no cooldown: a sustained loud passage reports a beat on every
// frame. Detector is meant to be driven by a single goroutine.
type Detector struct {
	source      FrameSource
	history     *History
	sensitivity float64
}

// NewDetector builds a Detector reading frames from source.
func NewDetector(source FrameSource, opts ...Option) (*Detector, error) {
	if source == nil {
		return nil, eris.New("beat detector requires a frame source")
	}

	o := detectorOptions{
		sensitivity: DefaultSensitivity,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if math.IsNaN(o.sensitivity) || math.IsInf(o.sensitivity, 0) || o.sensitivity <= 0 {
		return nil, eris.Errorf("sensitivity must be a positive number, got %v", o.sensitivity)
	}

	history, err := NewHistory(o.historySize)
	if err != nil {
		return nil, err
	}

	return &Detector{
		source:      source,
		history:     history,
		sensitivity: o.sensitivity,
	}, nil
}

// DetectBeat reports whether the current frame is a beat.
func (d *Detector) DetectBeat() (bool, error) {
	res, err := d.Detect()
	if err != nil {
		return false, err
	}
	return res.Beat, nil
}

// Detect processes the current frame and returns the full decision.
func (d *Detector) Detect() (Result, error) {
	frame, err := d.source.CurrentFrame()
	if err != nil {
		if eris.Is(err, ErrCaptureUnavailable) {
			return Result{}, err
		}
		return Result{}, &sourceError{cause: err}
	}

	energy, err := ComputeEnergy(frame)
	if err != nil {
		return Result{}, err
	}

	d.history.Push(energy)

	baseline, err := d.history.Mean()
	if err != nil {
		// No baseline yet reads as no beat.
		return Result{Energy: energy}, nil
	}

	threshold := baseline * d.sensitivity
	return Result{
		Beat:      energy > threshold,
		Energy:    energy,
		Baseline:  baseline,
		Threshold: threshold,
	}, nil
}

// Sensitivity returns the configured baseline multiplier.
func (d *Detector) Sensitivity() float64 {
	return d.sensitivity
}

// History exposes the rolling energy history without the ability to push.
func (d *Detector) History() HistoryView {
	return HistoryView{h: d.history}
}
