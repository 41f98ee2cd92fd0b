package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger for env: human-readable text in dev,
// JSON everywhere else. Debug records are dropped in prod.
func NewLogger(env string) *slog.Logger {
	switch strings.ToLower(env) {
	case "dev", "local", "":
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case "prod":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
