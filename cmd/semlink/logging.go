package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLevel accepts the slog level names in any case; anything else means info
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// setupLogger builds the process logger. Debug level also records call sites.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With(
		slog.String("service", appName),
		slog.String("version", Version),
		slog.Int("pid", os.Getpid()),
	)
}
