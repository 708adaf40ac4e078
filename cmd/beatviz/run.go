package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/cybre/beatviz/internal/beat"
	"github.com/cybre/beatviz/internal/capture"
	"github.com/cybre/beatviz/internal/config"
	"github.com/cybre/beatviz/internal/observe"
	"github.com/cybre/beatviz/internal/reaction"
	"github.com/cybre/beatviz/internal/session"
	"github.com/cybre/beatviz/internal/transport"
	"github.com/cybre/beatviz/internal/ui"
)

const shutdownTimeout = 5 * time.Second

func run(ctx context.Context, cfg *config.Config) error {
	logger, logCloser, err := setupLogger(cfg.Log, cfg.UI.Visualize)
	if err != nil {
		return err
	}
	defer logCloser.Close()

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
	} else {
		logger.Debug("no default input device", slog.Any("err", err))
	}

	device, err := selectDevice(devices, defaultIndex, cfg.Audio.Device, []ui.SummaryRow{
		{Label: "Sensitivity", Value: fmt.Sprintf("%.2f", cfg.Detector.Sensitivity)},
		{Label: "History", Value: fmt.Sprintf("%d frames", cfg.Detector.History)},
		{Label: "FFT size", Value: fmt.Sprintf("%d", cfg.Audio.FFTSize)},
		{Label: "Mode", Value: cfg.Visual.Mode},
	})
	if err != nil {
		return eris.Wrap(err, "select input device")
	}

	if cfg.Audio.Channels > device.MaxInputChannels {
		logger.Warn("requested channels exceed device capabilities",
			slog.Int("requested", cfg.Audio.Channels),
			slog.Int("max", device.MaxInputChannels))
	}

	stream, err := capture.Open(ctx, logger, device, capture.Options{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Latency:    cfg.Audio.Latency,
		Spectrum:   cfg.SpectrumOptions(),
		StaleAfter: cfg.Audio.StaleAfter,
	})
	if err != nil {
		switch {
		case eris.Is(err, capture.ErrPermissionDenied):
			return eris.Wrap(err, "microphone access was refused; allow this terminal to record audio")
		case eris.Is(err, capture.ErrDeviceUnavailable):
			return eris.Wrapf(err, "cannot capture from %s", device.Name)
		}
		return err
	}

	detector, err := beat.NewDetector(stream, cfg.DetectorOptions()...)
	if err != nil {
		_ = stream.Close()
		return err
	}
	policyOpts, err := cfg.PolicyOptions()
	if err != nil {
		_ = stream.Close()
		return err
	}
	policy, err := reaction.NewPolicy(policyOpts)
	if err != nil {
		_ = stream.Close()
		return err
	}

	provider, err := observe.InitProvider(version)
	if err != nil {
		_ = stream.Close()
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("metrics shutdown failed", slog.Any("err", err))
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		_ = stream.Close()
		return eris.Wrap(err, "create metrics")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	particles := cfg.ParticleField()
	renderers := []session.Renderer{session.NewLogRenderer(logger)}
	if cfg.UI.Visualize {
		renderers = append(renderers, ui.NewVisualizer(particles, cancel))
	}
	var hub *transport.Hub
	if cfg.HTTP.Addr != "" {
		hub = transport.NewHub(logger, particles)
		renderers = append(renderers, hub)
	}

	sess, err := session.New(session.Options{
		Source:        stream,
		Detector:      detector,
		Policy:        policy,
		Renderers:     renderers,
		Metrics:       metrics,
		Logger:        logger,
		FrameRate:     cfg.Loop.FrameRate,
		RetryInterval: cfg.Loop.RetryInterval,
	})
	if err != nil {
		_ = stream.Close()
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("session close failed", slog.Any("err", err))
		}
	}()

	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		return sess.Run(gctx)
	})

	if hub != nil {
		srv := newHTTPServer(gctx, cfg.HTTP.Addr, hub, provider, observe.NewHealth(
			observe.Checker{Name: "capture", Check: func(context.Context) error { return stream.Healthy() }},
			observe.Checker{Name: "detection", Check: func(context.Context) error {
				if sess.Paused() {
					return errors.New("paused waiting for capture")
				}
				return nil
			}},
		))

		g.Go(func() error {
			logger.Info("http server listening", slog.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "http server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !eris.Is(err, context.Canceled) {
		logger.Error("beat session failed", slog.Any("err", err))
		return err
	}
	return nil
}

func newHTTPServer(ctx context.Context, addr string, hub *transport.Hub, provider *observe.Provider, health *observe.Health) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("GET /metrics", provider.Handler())
	health.Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}
