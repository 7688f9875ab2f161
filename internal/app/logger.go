package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON or text per LOG_FORMAT, filtered at LOG_LEVEL,
// and tagged with the service name and environment so API and worker lines can be told apart.
func NewLogger(cfg *Config, service string) *slog.Logger {
	return newLogger(os.Stdout, cfg, service)
}

func newLogger(w io.Writer, cfg *Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	var attrs []any
	if service != "" {
		attrs = append(attrs, slog.String("service", service))
	}
	if cfg != nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			opts.Level = level
		}
		if cfg.AppEnv != "" {
			attrs = append(attrs, slog.String("env", cfg.AppEnv))
		}
	}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(attrs...)
}
