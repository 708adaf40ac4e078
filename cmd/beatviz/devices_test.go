package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybre/beatviz/internal/capture"
)

func testDevices() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{Index: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{Index: 1, Name: "Built-in Mic", MaxInputChannels: 1, DefaultSampleRate: 48000, DefaultLowInputLatency: 5 * time.Millisecond},
		{Index: 2, Name: "USB Interface", MaxInputChannels: 2, DefaultSampleRate: 44100, DefaultLowInputLatency: 3 * time.Millisecond},
	}
}

func TestSelectDeviceByIndex(t *testing.T) {
	dev, err := selectDevice(testDevices(), 1, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "USB Interface", dev.Name)
}

func TestSelectDeviceRejectsUnusableIndex(t *testing.T) {
	_, err := selectDevice(testDevices(), 1, 0, nil)
	assert.True(t, eris.Is(err, capture.ErrDeviceUnavailable))

	_, err = selectDevice(testDevices(), 1, 7, nil)
	assert.True(t, eris.Is(err, capture.ErrDeviceUnavailable))
}

func TestSelectDeviceWithoutInputs(t *testing.T) {
	_, err := selectDevice(testDevices()[:1], -1, -1, nil)
	assert.True(t, eris.Is(err, capture.ErrDeviceUnavailable))
}

func TestEffectiveInitialDeviceIndex(t *testing.T) {
	inputs := inputDevices(testDevices())
	require.Len(t, inputs, 2)

	assert.Equal(t, 1, effectiveInitialDeviceIndex(inputs, 2))
	assert.Equal(t, 0, effectiveInitialDeviceIndex(inputs, 1))
	assert.Equal(t, 0, effectiveInitialDeviceIndex(inputs, 0))
	assert.Equal(t, 0, effectiveInitialDeviceIndex(inputs, -1))
}

func TestBuildDeviceOptionsUsesDeviceIndex(t *testing.T) {
	opts := buildDeviceOptions(inputDevices(testDevices()))
	require.Len(t, opts, 2)
	assert.Equal(t, "[1] Built-in Mic · 48000Hz · in:1 · latency:5.0ms", opts[0].Label)
	assert.Contains(t, opts[1].Label, "[2] USB Interface")
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDevices(&buf, testDevices(), 2))

	out := buf.String()
	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "Built-in Mic")
	assert.Contains(t, out, "USB Interface (default)")
	assert.NotContains(t, out, "Speakers")
}
