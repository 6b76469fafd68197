package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Records carry the service name and
// environment so API and worker output stay distinguishable in one stream;
// packages add their own component attribute on top.
func NewLogger(cfg *Config, service string) *slog.Logger {
	return newLogger(os.Stdout, cfg, service)
}

func newLogger(w io.Writer, cfg *Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: cfg.level()}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	attrs := []any{slog.String("service", service)}
	if cfg != nil && cfg.AppEnv != "" {
		attrs = append(attrs, slog.String("env", cfg.AppEnv))
	}
	return slog.New(handler).With(attrs...)
}

// level parses LOG_LEVEL, defaulting to info.
func (c *Config) level() slog.Level {
	var lvl slog.Level
	if c == nil || c.LogLevel == "" {
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
