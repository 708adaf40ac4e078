package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gordonklaus/portaudio"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cybre/beatviz/internal/capture"
	"github.com/cybre/beatviz/internal/ui"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := capture.Initialize(); err != nil {
				return err
			}
			defer capture.Terminate()

			devices, err := capture.Devices()
			if err != nil {
				return err
			}
			defaultIndex := -1
			if def, err := capture.DefaultInputDevice(); err == nil {
				defaultIndex = def.Index
			}

			return printDevices(cmd.OutOrStdout(), devices, defaultIndex)
		},
	}
}

func printDevices(w io.Writer, devices []*portaudio.DeviceInfo, defaultIndex int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tRATE\tINPUTS\tLATENCY")
	for _, dev := range inputDevices(devices) {
		marker := ""
		if dev.Index == defaultIndex {
			marker = " (default)"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%.0fHz\t%d\t%.1fms\n",
			dev.Index,
			dev.Name,
			marker,
			dev.DefaultSampleRate,
			dev.MaxInputChannels,
			dev.DefaultLowInputLatency.Seconds()*1000,
		)
	}
	return tw.Flush()
}

// inputDevices keeps devices that can record.
func inputDevices(devices []*portaudio.DeviceInfo) []*portaudio.DeviceInfo {
	out := make([]*portaudio.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			out = append(out, dev)
		}
	}
	return out
}

// selectDevice resolves the device to capture from. A non-negative
// requested index is a PortAudio device index. Otherwise the user picks
// interactively, falling back to the default input without a terminal.
func selectDevice(devices []*portaudio.DeviceInfo, defaultIndex, requested int, summary []ui.SummaryRow) (*portaudio.DeviceInfo, error) {
	if requested >= 0 {
		for _, dev := range devices {
			if dev.Index == requested {
				if dev.MaxInputChannels < 1 {
					return nil, eris.Wrapf(capture.ErrDeviceUnavailable,
						"device %d (%s) has no input channels; select a loopback/monitor device", requested, dev.Name)
				}
				return dev, nil
			}
		}
		return nil, eris.Wrapf(capture.ErrDeviceUnavailable, "no device with index %d", requested)
	}

	inputs := inputDevices(devices)
	if len(inputs) == 0 {
		return nil, eris.Wrap(capture.ErrDeviceUnavailable, "no input devices available")
	}

	initial := effectiveInitialDeviceIndex(inputs, defaultIndex)
	choice, err := ui.PickDevice(buildDeviceOptions(inputs), initial, summary)
	if err != nil {
		if eris.Is(err, ui.ErrNoInteractiveTTY) {
			return inputs[initial], nil
		}
		return nil, err
	}
	return inputs[choice], nil
}

func buildDeviceOptions(devices []*portaudio.DeviceInfo) []ui.Option {
	options := make([]ui.Option, len(devices))
	for i, dev := range devices {
		options[i] = ui.Option{
			Label: fmt.Sprintf(
				"[%d] %s · %.0fHz · in:%d · latency:%.1fms",
				dev.Index,
				dev.Name,
				dev.DefaultSampleRate,
				dev.MaxInputChannels,
				dev.DefaultLowInputLatency.Seconds()*1000,
			),
		}
	}
	return options
}

// effectiveInitialDeviceIndex returns the position of the default device in
// inputs, or 0.
func effectiveInitialDeviceIndex(inputs []*portaudio.DeviceInfo, defaultIndex int) int {
	for i, dev := range inputs {
		if dev.Index == defaultIndex {
			return i
		}
	}
	return 0
}
