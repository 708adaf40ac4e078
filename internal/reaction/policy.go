package reaction

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	DefaultBeatScale = 1.5
	DefaultRestScale = 1.0
	// DefaultIntensityDivisor maps a byte-scale energy onto a scale factor.
	DefaultIntensityDivisor = 50.0
)

// Mode selects how a Policy derives the scale.
type Mode string

const (
	// ModeBeat switches between the beat and rest scales.
	ModeBeat Mode = "beat"
	// ModeIntensity follows loudness: scale is energy / IntensityDivisor.
	ModeIntensity Mode = "intensity"
)

// ParseMode accepts "beat" or "intensity"; an empty string is ModeBeat.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeBeat, nil
	case ModeBeat, ModeIntensity:
		return m, nil
	default:
		return "", eris.Errorf("unknown reaction mode %q (want beat or intensity)", s)
	}
}

// Options configures a Policy. Zero fields take the defaults.
type Options struct {
	Mode      Mode
	BeatScale float64
	RestScale float64
	BeatColor *Color
	RestColor *Color

	IntensityDivisor float64
}

// State is what a renderer should show for one frame.
type State struct {
	Beat  bool    `json:"beat"`
	Scale float64 `json:"scale"`
	Color Color   `json:"color"`
}

// Policy maps a beat decision to a visual state. It keeps no state between
// calls.
type Policy struct {
	mode    Mode
	divisor float64
	beat    State
	rest    State
}

func DefaultPolicy() *Policy {
	p, _ := NewPolicy(Options{})
	return p
}

func NewPolicy(opts Options) (*Policy, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.IntensityDivisor == 0 {
		opts.IntensityDivisor = DefaultIntensityDivisor
	}
	if !(opts.IntensityDivisor > 0) || math.IsInf(opts.IntensityDivisor, 0) {
		return nil, eris.Errorf("intensity divisor must be a positive number, got %v", opts.IntensityDivisor)
	}
	if opts.BeatScale == 0 {
		opts.BeatScale = DefaultBeatScale
	}
	if opts.RestScale == 0 {
		opts.RestScale = DefaultRestScale
	}
	for name, scale := range map[string]float64{"beat": opts.BeatScale, "rest": opts.RestScale} {
		if !(scale > 0) || math.IsInf(scale, 0) {
			return nil, eris.Errorf("%s scale must be a positive number, got %v", name, scale)
		}
	}

	beatColor, restColor := Red, Green
	if opts.BeatColor != nil {
		beatColor = *opts.BeatColor
	}
	if opts.RestColor != nil {
		restColor = *opts.RestColor
	}

	return &Policy{
		mode:    mode,
		divisor: opts.IntensityDivisor,
		beat:    State{Beat: true, Scale: opts.BeatScale, Color: beatColor},
		rest:    State{Beat: false, Scale: opts.RestScale, Color: restColor},
	}, nil
}

// React returns the beat state when beat is true and the rest state otherwise.
// In intensity mode the scale is replaced by energy over the divisor.
func (p *Policy) React(beat bool, energy float64) State {
	st := p.rest
	if beat {
		st = p.beat
	}
	if p.mode == ModeIntensity {
		st.Scale = max(energy, 0) / p.divisor
	}
	return st
}

// Mode reports how the policy derives the scale.
func (p *Policy) Mode() Mode {
	return p.mode
}
