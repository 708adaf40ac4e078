package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cybre/beatviz/internal/config"
)

// setupLogger installs the process logger. A log file takes every record at
// the configured level. Otherwise logs go to stdout, or, with the terminal
// visualizer on, to stderr where only warnings get through unless debug was
// asked for.
func setupLogger(cfg config.LogConfig, visualize bool) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out, closer, level := logOutput(cfg, visualize, level)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closer, nil
}

func logOutput(cfg config.LogConfig, visualize bool, level slog.Level) (io.Writer, io.Closer, slog.Level) {
	switch {
	case cfg.File != "":
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		return file, file, level
	case visualize:
		if level > slog.LevelDebug {
			level = max(level, slog.LevelWarn)
		}
		return os.Stderr, io.NopCloser(nil), level
	default:
		return os.Stdout, io.NopCloser(nil), level
	}
}
