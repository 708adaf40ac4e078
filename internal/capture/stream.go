package capture

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rotisserie/eris"

	"github.com/cybre/beatviz/internal/dsp"
)

var (
	// ErrPermissionDenied is returned when the host refuses microphone access.
	ErrPermissionDenied = eris.New("microphone permission denied")
	// ErrDeviceUnavailable is returned when no usable input device can be opened.
	ErrDeviceUnavailable = eris.New("audio input device unavailable")
)

// Options configures an input stream.
type Options struct {
	SampleRate float64
	Channels   int
	// Latency overrides the device's default low input latency when > 0.
	Latency    time.Duration
	Spectrum   dsp.SpectrumOptions
	StaleAfter time.Duration
}

// Stream is a running PortAudio input stream feeding an Analyser.
type Stream struct {
	*Analyser

	stream   *portaudio.Stream
	device   *portaudio.DeviceInfo
	channels int
	mono     []float64
	logger   *slog.Logger
}

// Initialize sets up the PortAudio library. Pair it with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return eris.Wrap(err, "initialize PortAudio")
	}
	return nil
}

// Terminate releases the PortAudio library.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return eris.Wrap(err, "terminate PortAudio")
	}
	return nil
}

// Devices lists every device PortAudio knows about.
func Devices() ([]*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, eris.Wrap(err, "enumerate audio devices")
	}
	return devices, nil
}

// DefaultInputDevice returns the host's default input device.
func DefaultInputDevice() (*portaudio.DeviceInfo, error) {
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, classifyOpenError(err, "resolve default input device")
	}
	return device, nil
}

// Open starts capturing from device. The frames per buffer follow the FFT
// size so every callback delivers one analysis block.
func Open(ctx context.Context, logger *slog.Logger, device *portaudio.DeviceInfo, opts Options) (*Stream, error) {
	if device == nil {
		return nil, eris.Wrap(ErrDeviceUnavailable, "no input device selected")
	}
	if device.MaxInputChannels < 1 {
		return nil, eris.Wrapf(ErrDeviceUnavailable, "device %s has no input channels", device.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "open audio stream")
	}

	analyser, err := NewAnalyser(AnalyserOptions{
		Spectrum:   opts.Spectrum,
		StaleAfter: opts.StaleAfter,
	})
	if err != nil {
		return nil, err
	}

	channels := SanitizeChannelCount(opts.Channels, device.MaxInputChannels)
	sampleRate := EffectiveSampleRate(opts.SampleRate, device.DefaultSampleRate)

	s := &Stream{
		Analyser: analyser,
		device:   device,
		channels: channels,
		logger:   logger,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: opts.Spectrum.FFTSize,
	}
	if opts.Latency > 0 {
		params.Input.Latency = opts.Latency
	}

	logger.Info("opening audio input",
		slog.String("device", device.Name),
		slog.Float64("sample_rate", sampleRate),
		slog.Int("channels", channels),
		slog.Int("fft_size", opts.Spectrum.FFTSize),
	)

	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return nil, classifyOpenError(err, "open audio stream")
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, classifyOpenError(err, "start audio stream")
	}

	return s, nil
}

// Device describes the device being captured.
func (s *Stream) Device() *portaudio.DeviceInfo {
	return s.device
}

// Close stops the stream and releases the device.
func (s *Stream) Close() error {
	_ = s.Analyser.Close()

	if s.stream == nil {
		return nil
	}

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, eris.Wrap(err, "stop audio stream"))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, eris.Wrap(err, "close audio stream"))
	}
	s.stream = nil

	return errors.Join(errs...)
}

// process runs on the PortAudio callback thread.
func (s *Stream) process(in []float32) {
	s.mono = dsp.ToMono(in, s.channels, s.mono)
	s.Write(s.mono)
}

func classifyOpenError(err error, msg string) error {
	var paErr portaudio.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case portaudio.DeviceUnavailable, portaudio.InvalidDevice, portaudio.InvalidChannelCount:
			return eris.Wrapf(ErrDeviceUnavailable, "%s: %v", msg, err)
		}
	}

	if errors.Is(err, fs.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission") {
		return eris.Wrapf(ErrPermissionDenied, "%s: %v", msg, err)
	}

	return eris.Wrap(err, msg)
}

// SanitizeChannelCount keeps the requested channel count within what the
// device supports.
func SanitizeChannelCount(requested, max int) int {
	if requested <= 0 {
		return 1
	}

	if max > 0 && requested > max {
		return max
	}

	return requested
}

// EffectiveSampleRate prefers the requested rate, then the device default.
func EffectiveSampleRate(requested, deviceDefault float64) float64 {
	if requested > 0 {
		return requested
	}

	if deviceDefault > 0 {
		return deviceDefault
	}

	return 44100
}
