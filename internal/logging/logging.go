// Package logging provides the structured slog-based logger shared by
// every pipeline component. Log-file rotation is dropped (an explicit
// non-goal); the handler writes JSON to a plain file or, when attached
// to a terminal, a human-readable text handler to stdout.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means stdout only.
	FilePath string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// Setup builds a slog.Logger per cfg and returns it alongside a
// cleanup function that closes any opened file handle.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var (
		output  io.Writer = os.Stdout
		cleanup           = func() {}
	)

	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		output = f
		cleanup = func() { _ = f.Close() }
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.FilePath == "" && isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler), cleanup, nil
}

// SetupDefault sets up logging with default configuration and installs
// it as the process-wide default logger.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DefaultConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
