package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON stdout logger as the slog default. LOG_LEVEL selects
// debug, info, warn or error (default info).
func Setup() *slog.HandlerOptions {
	opts := &slog.HandlerOptions{Level: ParseLevel(os.Getenv("LOG_LEVEL"))}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
	return opts
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
