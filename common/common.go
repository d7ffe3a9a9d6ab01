// Package common provides shared utilities used across the module,
// primarily structured logger setup for commands and services.
package common

import (
	"log/slog"
	"os"
)

// Version is the module version, overridable at build time via ldflags.
var Version = "dev"

// LoggingOpts configures the logger produced by SetupLogger.
type LoggingOpts struct {
	// Debug enables debug-level logging.
	Debug bool

	// JSON switches output from text to JSON format.
	JSON bool

	// Service, when set, is attached to every record as a "service" tag.
	Service string

	// Version, when set, is attached to every record as a "version" tag.
	Version string
}

// SetupLogger creates a slog.Logger writing to stderr according to opts.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
