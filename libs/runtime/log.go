package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/md-rashed-zaman/practicepulse/libs/config"
)

// NewLogger returns the service logger on stdout. LOG_LEVEL accepts debug,
// info, warn or error. Output is JSON unless LOG_FORMAT=text, which is the
// default outside production.
func NewLogger(service string) *slog.Logger {
	return newLogger(os.Stdout, service)
}

func newLogger(w io.Writer, service string) *slog.Logger {
	level := ParseLevel(config.String("LOG_LEVEL", "info"))
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	format := "text"
	if IsProduction() {
		format = "json"
	}
	var h slog.Handler
	if strings.EqualFold(config.String("LOG_FORMAT", format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service, "env", Environment())
}

func ParseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
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

// Environment is APP_ENV lowercased, "development" when unset.
func Environment() string {
	return strings.ToLower(strings.TrimSpace(config.String("APP_ENV", "development")))
}

func IsProduction() bool {
	switch Environment() {
	case "production", "prod":
		return true
	}
	return false
}
