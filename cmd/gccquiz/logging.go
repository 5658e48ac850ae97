package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// newLogger returns a charm text logger or a JSON logger, both behind slog.
func newLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := charmlog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(lvl)})), nil
	case "text", "":
		handler := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Level:           lvl,
		})
		return slog.New(handler), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
