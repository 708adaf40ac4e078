package dsp

import (
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/cybre/beatviz/internal/utils"
)

const (
	MinFFTSize = 32
	MaxFFTSize = 32768

	DefaultFFTSize     = 512
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	DefaultWindow      = "blackman"
)

// SpectrumOptions configures a SpectrumAnalyser.
type SpectrumOptions struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
	Window      string
}

// DefaultSpectrumOptions mirrors the defaults of a browser analyser node,
// with a smaller block size for quicker beat response.
func DefaultSpectrumOptions() SpectrumOptions {
	return SpectrumOptions{
		FFTSize:     DefaultFFTSize,
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
		Window:      DefaultWindow,
	}
}

// SpectrumAnalyser turns the newest block of mono samples into byte magnitudes,
// one per frequency bin, the same way a browser analyser node does: window,
// FFT, magnitude normalised by block size, exponential smoothing against the
// previous call, then a linear map of [MinDecibels, MaxDecibels] onto [0, 255].
type SpectrumAnalyser struct {
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64

	window   []float64
	windowed []float64
	smoothed []float64
}

// NewSpectrumAnalyser validates opts and pre-computes the window.
func NewSpectrumAnalyser(opts SpectrumOptions) (*SpectrumAnalyser, error) {
	if opts.FFTSize < MinFFTSize || opts.FFTSize > MaxFFTSize || opts.FFTSize&(opts.FFTSize-1) != 0 {
		return nil, eris.Errorf("fft size must be a power of two in [%d, %d], got %d", MinFFTSize, MaxFFTSize, opts.FFTSize)
	}
	if opts.Smoothing < 0 || opts.Smoothing > 1 || math.IsNaN(opts.Smoothing) {
		return nil, eris.Errorf("smoothing must be in [0, 1], got %v", opts.Smoothing)
	}
	if !(opts.MinDecibels < opts.MaxDecibels) {
		return nil, eris.Errorf("min decibels (%v) must be below max decibels (%v)", opts.MinDecibels, opts.MaxDecibels)
	}

	coeffs := make([]float64, opts.FFTSize)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch strings.ToLower(opts.Window) {
	case "blackman":
		window.Blackman(coeffs)
	case "hann":
		window.Hann(coeffs)
	default:
		return nil, eris.Errorf("unknown window %q", opts.Window)
	}

	return &SpectrumAnalyser{
		fftSize:   opts.FFTSize,
		smoothing: opts.Smoothing,
		minDB:     opts.MinDecibels,
		maxDB:     opts.MaxDecibels,
		window:    coeffs,
		windowed:  make([]float64, opts.FFTSize),
		smoothed:  make([]float64, opts.FFTSize/2),
	}, nil
}

// FFTSize returns the analysis block size.
func (s *SpectrumAnalyser) FFTSize() int {
	return s.fftSize
}

// BinCount returns the number of bins produced per call.
func (s *SpectrumAnalyser) BinCount() int {
	return s.fftSize / 2
}

// ByteFrequencyData analyses the newest FFTSize samples and writes one byte
// per bin into dst, growing it when needed. Fewer samples than FFTSize are
// treated as preceded by silence, and NaN or infinite samples as silent.
func (s *SpectrumAnalyser) ByteFrequencyData(samples []float64, dst []uint8) []uint8 {
	bins := s.BinCount()
	if cap(dst) < bins {
		dst = make([]uint8, bins)
	} else {
		dst = dst[:bins]
	}

	if len(samples) > s.fftSize {
		samples = samples[len(samples)-s.fftSize:]
	}
	pad := s.fftSize - len(samples)
	for i := range pad {
		s.windowed[i] = 0
	}
	for i, v := range samples {
		if !finite(v) {
			v = 0
		}
		s.windowed[pad+i] = v * s.window[pad+i]
	}

	spectrum := fft.FFTReal(s.windowed)
	scale := 1 / float64(s.fftSize)
	rangeDB := s.maxDB - s.minDB

	for i := range bins {
		mag := cmplx.Abs(spectrum[i]) * scale
		if !finite(mag) {
			mag = 0
		}
		s.smoothed[i] = s.smoothing*s.smoothed[i] + (1-s.smoothing)*mag

		db := 20 * math.Log10(s.smoothed[i])
		scaled := 255 * (db - s.minDB) / rangeDB
		dst[i] = uint8(utils.Clamp(math.Floor(scaled), 0.0, 255.0))
	}

	return dst
}

// Reset clears the smoothing memory.
func (s *SpectrumAnalyser) Reset() {
	for i := range s.smoothed {
		s.smoothed[i] = 0
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
