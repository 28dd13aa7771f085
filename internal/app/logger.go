package app

import (
	"io"
	"log/slog"
	"os"
)

const serviceName = "odyssey-console"

// NewLogger returns the process logger: text by default, JSON when
// LOG_FORMAT=json, filtered at LOG_LEVEL.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	format := "pretty"
	var env string
	if cfg != nil {
		format = cfg.LogFormat
		env = cfg.AppEnv
		if level, err := parseLevel(cfg.LogLevel); err == nil {
			opts.Level = level
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With(slog.String("service", serviceName))
	if env != "" {
		logger = logger.With(slog.String("env", env))
	}
	return logger
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
