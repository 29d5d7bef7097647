package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Every record carries a service
// attribute so gateway-side and dashboard-side logs stay attributable
// when collected together. Debug level is enabled outside production.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg == nil || !cfg.IsProduction() {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler.WithAttrs([]slog.Attr{slog.String("service", "taskdeck")}))
}
