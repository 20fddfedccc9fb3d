package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/verdantlabs/hydrocore/internal/infrastructure/config"
)

// Logger is the process-wide structured logger. It embeds *slog.Logger,
// so it satisfies the small Logger interfaces the other packages declare
// (Debug/Info/Warn/Error with key-value args).
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the config file.
//
// Format selects between JSON (default) and text handlers. Output is
// "stdout", "stderr", or a file path; an unopenable file falls back to
// stdout so a bad path never silences the process. Every record carries
// service and version attributes.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := buildHandler(openOutput(cfg.Output), cfg).WithAttrs([]slog.Attr{
		slog.String("service", "hydrocore"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

func openOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	}
}

func buildHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps a config level string to a slog.Level. Unrecognised
// values mean info.
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

// With returns a child logger carrying additional default attributes,
// typically a component tag:
//
//	log.With("component", "mqtt")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON/info/stdout logger for use during startup,
// before the config file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
