// Package observe carries the metrics, exporter and health probes of a
// beatviz process.
//
// Instruments are created through the OpenTelemetry metrics API so tests can
// back them with a ManualReader, while InitProvider bridges them to a
// Prometheus scrape endpoint.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cybre/beatviz"

// Metrics holds the instruments recorded by the frame loop. All methods are
// safe on a nil receiver so headless tests can skip metrics entirely.
type Metrics struct {
	Frames        metric.Int64Counter
	Beats         metric.Int64Counter
	CaptureErrors metric.Int64Counter
	InvalidFrames metric.Int64Counter
	RenderErrors  metric.Int64Counter
	Energy        metric.Float64Histogram
	Paused        metric.Int64UpDownCounter
}

// Frame energies live in [0, 255].
var energyBuckets = []float64{
	8, 16, 32, 48, 64, 96, 128, 160, 192, 224, 255,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("beatviz.frames",
		metric.WithDescription("Frames run through beat detection."),
	); err != nil {
		return nil, err
	}
	if met.Beats, err = m.Int64Counter("beatviz.beats",
		metric.WithDescription("Frames classified as a beat."),
	); err != nil {
		return nil, err
	}
	if met.CaptureErrors, err = m.Int64Counter("beatviz.capture.errors",
		metric.WithDescription("Frame reads that failed because capture was unavailable."),
	); err != nil {
		return nil, err
	}
	if met.InvalidFrames, err = m.Int64Counter("beatviz.frames.invalid",
		metric.WithDescription("Frames skipped because they carried no bins."),
	); err != nil {
		return nil, err
	}
	if met.RenderErrors, err = m.Int64Counter("beatviz.render.errors",
		metric.WithDescription("Renderer failures by renderer."),
	); err != nil {
		return nil, err
	}
	if met.Energy, err = m.Float64Histogram("beatviz.energy",
		metric.WithDescription("Mean byte magnitude per frame."),
		metric.WithExplicitBucketBoundaries(energyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Paused, err = m.Int64UpDownCounter("beatviz.paused",
		metric.WithDescription("1 while detection is paused waiting for capture."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame counts a processed frame and its energy.
func (m *Metrics) RecordFrame(ctx context.Context, beat bool, energy float64) {
	if m == nil {
		return
	}
	m.Frames.Add(ctx, 1)
	m.Energy.Record(ctx, energy)
	if beat {
		m.Beats.Add(ctx, 1)
	}
}

func (m *Metrics) RecordCaptureError(ctx context.Context) {
	if m == nil {
		return
	}
	m.CaptureErrors.Add(ctx, 1)
}

func (m *Metrics) RecordInvalidFrame(ctx context.Context) {
	if m == nil {
		return
	}
	m.InvalidFrames.Add(ctx, 1)
}

func (m *Metrics) RecordRenderError(ctx context.Context, renderer string) {
	if m == nil {
		return
	}
	m.RenderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("renderer", renderer)))
}

// SetPaused moves the paused gauge between 0 and 1. Callers only report
// transitions.
func (m *Metrics) SetPaused(ctx context.Context, paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.Paused.Add(ctx, 1)
		return
	}
	m.Paused.Add(ctx, -1)
}
