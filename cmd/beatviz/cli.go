package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cybre/beatviz/internal/config"
)

type cliFlags struct {
	configPath  string
	device      int
	sensitivity float64
	history     int
	fftSize     int
	frameRate   int
	visualize   bool
	mode        string
	httpAddr    string
	debug       bool
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	root := &cobra.Command{
		Use:           "beatviz",
		Short:         "Pulse a sphere in time with the beats picked up by your microphone",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")

	f := root.Flags()
	f.IntVarP(&flags.device, "device", "d", -1, "audio input device index (see 'beatviz devices'; -1 chooses interactively)")
	f.Float64VarP(&flags.sensitivity, "sensitivity", "s", 1.5, "beat threshold as a multiple of the rolling average energy")
	f.IntVar(&flags.history, "history", 60, "number of frames in the rolling energy average")
	f.IntVar(&flags.fftSize, "fft-size", 512, "analysis block size in samples (power of two)")
	f.IntVar(&flags.frameRate, "frame-rate", 60, "detection and render rate in frames per second")
	f.BoolVarP(&flags.visualize, "visualize", "v", false, "draw the sphere in the terminal (logs go to stderr)")
	f.StringVar(&flags.mode, "mode", "beat", "reaction mode: beat switches between two sizes, intensity follows loudness")
	f.StringVar(&flags.httpAddr, "http", "", "serve /ws, /metrics, /healthz and /readyz on this address")

	root.AddCommand(newDevicesCmd())
	return root
}

// loadConfig reads the config file and lets explicitly set flags win over it.
func loadConfig(flags cliFlags, changed func(string) bool) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if changed("device") {
		cfg.Audio.Device = flags.device
	}
	if changed("sensitivity") {
		cfg.Detector.Sensitivity = flags.sensitivity
	}
	if changed("history") {
		cfg.Detector.History = flags.history
	}
	if changed("fft-size") {
		cfg.Audio.FFTSize = flags.fftSize
	}
	if changed("frame-rate") {
		cfg.Loop.FrameRate = flags.frameRate
	}
	if changed("visualize") {
		cfg.UI.Visualize = flags.visualize
	}
	if changed("mode") {
		cfg.Visual.Mode = flags.mode
	}
	if changed("http") {
		cfg.HTTP.Addr = flags.httpAddr
	}
	if flags.debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid flags")
	}
	return cfg, nil
}
