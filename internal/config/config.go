// Package config loads beatviz settings from an optional YAML file, applies
// BEATVIZ_* environment overrides and validates the result.
package config

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cybre/beatviz/internal/beat"
	"github.com/cybre/beatviz/internal/capture"
	"github.com/cybre/beatviz/internal/dsp"
	"github.com/cybre/beatviz/internal/reaction"
	"github.com/cybre/beatviz/internal/session"
)

const envPrefix = "BEATVIZ_"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Audio    AudioConfig    `yaml:"audio"`
	Detector DetectorConfig `yaml:"detector"`
	Visual   VisualConfig   `yaml:"visual"`
	Loop     LoopConfig     `yaml:"loop"`
	HTTP     HTTPConfig     `yaml:"http"`
	UI       UIConfig       `yaml:"ui"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // rotating log file; empty logs to stdout, or stderr with the visualizer
}

type AudioConfig struct {
	Device      int           `yaml:"device"`      // PortAudio device index, -1 picks interactively or the default
	SampleRate  float64       `yaml:"sample_rate"` // 0 uses the device default
	Channels    int           `yaml:"channels"`
	Latency     time.Duration `yaml:"latency"` // 0 uses the device's low input latency
	FFTSize     int           `yaml:"fft_size"`
	Smoothing   float64       `yaml:"smoothing"`
	MinDecibels float64       `yaml:"min_decibels"`
	MaxDecibels float64       `yaml:"max_decibels"`
	Window      string        `yaml:"window"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

type DetectorConfig struct {
	History     int     `yaml:"history"`
	Sensitivity float64 `yaml:"sensitivity"`
}

type VisualConfig struct {
	Mode             string  `yaml:"mode"` // beat or intensity
	BeatScale        float64 `yaml:"beat_scale"`
	RestScale        float64 `yaml:"rest_scale"`
	BeatColor        string  `yaml:"beat_color"`
	RestColor        string  `yaml:"rest_color"`
	IntensityDivisor float64 `yaml:"intensity_divisor"`
	Particles        int     `yaml:"particles"` // 0 disables the particle field
	ParticleSeed     uint64  `yaml:"particle_seed"`
}

type LoopConfig struct {
	FrameRate     int           `yaml:"frame_rate"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the HTTP server
}

type UIConfig struct {
	Visualize bool `yaml:"visualize"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Audio: AudioConfig{
			Device:      -1,
			Channels:    1,
			FFTSize:     dsp.DefaultFFTSize,
			Smoothing:   dsp.DefaultSmoothing,
			MinDecibels: dsp.DefaultMinDecibels,
			MaxDecibels: dsp.DefaultMaxDecibels,
			Window:      dsp.DefaultWindow,
			StaleAfter:  capture.DefaultStaleAfter,
		},
		Detector: DetectorConfig{
			History:     beat.DefaultHistorySize,
			Sensitivity: beat.DefaultSensitivity,
		},
		Visual: VisualConfig{
			Mode:             string(reaction.ModeBeat),
			BeatScale:        reaction.DefaultBeatScale,
			RestScale:        reaction.DefaultRestScale,
			BeatColor:        reaction.Red.Hex(),
			RestColor:        reaction.Green.Hex(),
			IntensityDivisor: reaction.DefaultIntensityDivisor,
			Particles:        reaction.DefaultParticleCount,
			ParticleSeed:     1,
		},
		Loop: LoopConfig{
			FrameRate:     session.DefaultFrameRate,
			RetryInterval: session.DefaultRetryInterval,
		},
	}
}

// Load reads path over the defaults. An empty path skips the file. Unknown
// keys are rejected. Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open config %s", path)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, eris.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, eris.Wrapf(err, "%s%s", envPrefix, key))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(envPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, eris.Wrapf(err, "%s%s", envPrefix, key))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, eris.Wrapf(err, "%s%s", envPrefix, key))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	integer("DEVICE", &c.Audio.Device)
	integer("FFT_SIZE", &c.Audio.FFTSize)
	float("SENSITIVITY", &c.Detector.Sensitivity)
	integer("HISTORY", &c.Detector.History)
	str("MODE", &c.Visual.Mode)
	integer("PARTICLES", &c.Visual.Particles)
	integer("FRAME_RATE", &c.Loop.FrameRate)
	str("HTTP_ADDR", &c.HTTP.Addr)
	boolean("VISUALIZE", &c.UI.Visualize)

	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, eris.Errorf(format, args...))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	a := c.Audio
	if a.SampleRate < 0 {
		fail("audio.sample_rate must not be negative, got %v", a.SampleRate)
	}
	if a.Channels < 1 {
		fail("audio.channels must be at least 1, got %d", a.Channels)
	}
	if a.Latency < 0 {
		fail("audio.latency must not be negative, got %s", a.Latency)
	}
	if a.FFTSize < dsp.MinFFTSize || a.FFTSize > dsp.MaxFFTSize || a.FFTSize&(a.FFTSize-1) != 0 {
		fail("audio.fft_size must be a power of two in [%d, %d], got %d", dsp.MinFFTSize, dsp.MaxFFTSize, a.FFTSize)
	}
	if !(a.Smoothing >= 0 && a.Smoothing <= 1) {
		fail("audio.smoothing must be in [0, 1], got %v", a.Smoothing)
	}
	if !(a.MinDecibels < a.MaxDecibels) {
		fail("audio.min_decibels (%v) must be below audio.max_decibels (%v)", a.MinDecibels, a.MaxDecibels)
	}
	switch strings.ToLower(a.Window) {
	case "blackman", "hann":
	default:
		fail("audio.window must be blackman or hann, got %q", a.Window)
	}
	if a.StaleAfter <= 0 {
		fail("audio.stale_after must be positive, got %s", a.StaleAfter)
	}

	if c.Detector.History < 1 {
		fail("detector.history must be at least 1, got %d", c.Detector.History)
	}
	if s := c.Detector.Sensitivity; !(s > 0) || math.IsInf(s, 0) {
		fail("detector.sensitivity must be a positive number, got %v", s)
	}

	if _, err := reaction.ParseMode(c.Visual.Mode); err != nil {
		errs = append(errs, eris.Wrap(err, "visual.mode"))
	}
	if d := c.Visual.IntensityDivisor; !(d > 0) || math.IsInf(d, 0) {
		fail("visual.intensity_divisor must be a positive number, got %v", d)
	}
	if c.Visual.Particles < 0 {
		fail("visual.particles must not be negative, got %d", c.Visual.Particles)
	}
	if !(c.Visual.BeatScale > 0) {
		fail("visual.beat_scale must be positive, got %v", c.Visual.BeatScale)
	}
	if !(c.Visual.RestScale > 0) {
		fail("visual.rest_scale must be positive, got %v", c.Visual.RestScale)
	}
	if _, err := reaction.ParseColor(c.Visual.BeatColor); err != nil {
		errs = append(errs, eris.Wrap(err, "visual.beat_color"))
	}
	if _, err := reaction.ParseColor(c.Visual.RestColor); err != nil {
		errs = append(errs, eris.Wrap(err, "visual.rest_color"))
	}

	if c.Loop.FrameRate < 1 || c.Loop.FrameRate > 1000 {
		fail("loop.frame_rate must be in [1, 1000], got %d", c.Loop.FrameRate)
	}
	if c.Loop.RetryInterval <= 0 {
		fail("loop.retry_interval must be positive, got %s", c.Loop.RetryInterval)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, eris.Errorf("log.level %q is not one of debug, info, warn, error", s)
}

// SpectrumOptions converts the audio section for the analyser.
func (c *Config) SpectrumOptions() dsp.SpectrumOptions {
	return dsp.SpectrumOptions{
		FFTSize:     c.Audio.FFTSize,
		Smoothing:   c.Audio.Smoothing,
		MinDecibels: c.Audio.MinDecibels,
		MaxDecibels: c.Audio.MaxDecibels,
		Window:      c.Audio.Window,
	}
}

// DetectorOptions converts the detector section.
func (c *Config) DetectorOptions() []beat.Option {
	return []beat.Option{
		beat.WithHistorySize(c.Detector.History),
		beat.WithSensitivity(c.Detector.Sensitivity),
	}
}

// PolicyOptions converts the visual section. Call it on a validated config.
func (c *Config) PolicyOptions() (reaction.Options, error) {
	beatColor, err := reaction.ParseColor(c.Visual.BeatColor)
	if err != nil {
		return reaction.Options{}, err
	}
	restColor, err := reaction.ParseColor(c.Visual.RestColor)
	if err != nil {
		return reaction.Options{}, err
	}
	mode, err := reaction.ParseMode(c.Visual.Mode)
	if err != nil {
		return reaction.Options{}, err
	}
	return reaction.Options{
		Mode:             mode,
		BeatScale:        c.Visual.BeatScale,
		RestScale:        c.Visual.RestScale,
		BeatColor:        &beatColor,
		RestColor:        &restColor,
		IntensityDivisor: c.Visual.IntensityDivisor,
	}, nil
}

// ParticleField builds the static particle field from the visual section.
func (c *Config) ParticleField() []reaction.Particle {
	return reaction.NewParticleField(c.Visual.Particles, reaction.DefaultParticleSpread, c.Visual.ParticleSeed)
}
