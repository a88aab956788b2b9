// Package logging installs the process-wide slog handler. Format is chosen
// by the CLI's --log-format flag: "pretty" uses lmittmann/tint for
// colorized, human-readable output; "json" uses the stdlib JSON handler for
// machine ingestion. Every component logs through slog.Default() with
// contextual attributes (component, job_id, subject, term) rather than
// threading a logger value through every call.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Format is the CLI-selectable log output format.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// Init installs the slog default handler for the given level/format and
// returns the configured logger for callers that want it explicitly.
func Init(level string, format Format, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl := parseLevel(level)

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		handler = tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: "15:04:05"})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
