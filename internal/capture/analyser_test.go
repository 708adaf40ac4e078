package capture

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybre/beatviz/internal/beat"
	"github.com/cybre/beatviz/internal/dsp"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestAnalyser(t *testing.T, clock *fakeClock) *Analyser {
	t.Helper()
	spectrum := dsp.DefaultSpectrumOptions()
	spectrum.Smoothing = 0
	a, err := NewAnalyser(AnalyserOptions{
		Spectrum:   spectrum,
		StaleAfter: time.Second,
		Now:        clock.Now,
	})
	require.NoError(t, err)
	return a
}

func tone(n, bin, fftSize int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(fftSize))
	}
	return out
}

func TestAnalyserSilenceBeforeFirstWrite(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	a := newTestAnalyser(t, clock)

	frame, err := a.CurrentFrame()
	require.NoError(t, err)
	assert.Len(t, frame, dsp.DefaultFFTSize/2)
	assert.Equal(t, a.BinCount(), len(frame))

	energy, err := beat.ComputeEnergy(frame)
	require.NoError(t, err)
	assert.Zero(t, energy)
}

func TestAnalyserReflectsLatestAudio(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	a := newTestAnalyser(t, clock)

	a.Write(tone(dsp.DefaultFFTSize, 32, dsp.DefaultFFTSize))
	frame, err := a.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), frame[32])

	a.Write(make([]float64, dsp.DefaultFFTSize))
	frame, err = a.CurrentFrame()
	require.NoError(t, err)
	assert.Zero(t, frame[32])
}

func TestAnalyserAcceptsPartialWrites(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	a := newTestAnalyser(t, clock)

	samples := tone(dsp.DefaultFFTSize, 32, dsp.DefaultFFTSize)
	for i := 0; i < len(samples); i += 100 {
		a.Write(samples[i:min(i+100, len(samples))])
	}

	frame, err := a.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), frame[32])
}

func TestAnalyserReportsStaleInput(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	a := newTestAnalyser(t, clock)

	a.Write(make([]float64, 64))
	clock.Advance(900 * time.Millisecond)
	_, err := a.CurrentFrame()
	require.NoError(t, err)
	require.NoError(t, a.Healthy())

	clock.Advance(200 * time.Millisecond)
	_, err = a.CurrentFrame()
	require.Error(t, err)
	assert.True(t, eris.Is(err, beat.ErrCaptureUnavailable))
	assert.Error(t, a.Healthy())

	a.Write(make([]float64, 64))
	_, err = a.CurrentFrame()
	assert.NoError(t, err)
}

func TestAnalyserStaleWithoutAnyAudio(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	a := newTestAnalyser(t, clock)

	clock.Advance(2 * time.Second)
	_, err := a.CurrentFrame()
	assert.True(t, eris.Is(err, beat.ErrCaptureUnavailable))
}

func TestAnalyserClosed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	a := newTestAnalyser(t, clock)

	require.NoError(t, a.Close())
	a.Write(make([]float64, 64))

	_, err := a.CurrentFrame()
	assert.True(t, eris.Is(err, beat.ErrCaptureUnavailable))
}

func TestAnalyserConcurrentWriteAndRead(t *testing.T) {
	a, err := NewAnalyser(AnalyserOptions{Spectrum: dsp.DefaultSpectrumOptions()})
	require.NoError(t, err)

	block := tone(256, 8, dsp.DefaultFFTSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			a.Write(block)
		}
	}()

	for range 200 {
		_, err := a.CurrentFrame()
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestSanitizeChannelCount(t *testing.T) {
	assert.Equal(t, 1, SanitizeChannelCount(0, 2))
	assert.Equal(t, 2, SanitizeChannelCount(4, 2))
	assert.Equal(t, 2, SanitizeChannelCount(2, 0))
	assert.Equal(t, 1, SanitizeChannelCount(1, 8))
}

func TestEffectiveSampleRate(t *testing.T) {
	assert.Equal(t, 48000.0, EffectiveSampleRate(48000, 44100))
	assert.Equal(t, 44100.0, EffectiveSampleRate(0, 44100))
	assert.Equal(t, 44100.0, EffectiveSampleRate(0, 0))
}
