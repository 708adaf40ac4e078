package session

import (
	"context"
	"log/slog"
)

// LogRenderer writes beats and notices to a slog logger. It is the renderer
// of a headless session.
type LogRenderer struct {
	logger *slog.Logger
}

func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Name() string { return "log" }

func (r *LogRenderer) Render(ctx context.Context, frame Frame) error {
	if !frame.Result.Beat {
		return nil
	}
	r.logger.DebugContext(ctx, "beat",
		slog.Uint64("seq", frame.Seq),
		slog.Float64("energy", frame.Result.Energy),
		slog.Float64("threshold", frame.Result.Threshold),
		slog.Float64("scale", frame.State.Scale),
		slog.String("color", frame.State.Color.Hex()))
	return nil
}

func (r *LogRenderer) Notice(ctx context.Context, msg string) {
	r.logger.InfoContext(ctx, msg)
}
