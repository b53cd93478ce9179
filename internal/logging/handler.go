// Package logging builds the process-wide slog handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Formats accepted by NewHandler.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel maps debug, info, warn and error to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// NewHandler returns a JSON handler, or a colorized console handler for "text".
//
// Console lines look like:
//
//	15:04:05.000 INF msg key=value key=value
func NewHandler(out io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	case FormatText:
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !isTerminal(out),
		}), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: json, text)", format)
	}
}

// isTerminal reports whether out is a terminal; colors are only written to terminals.
func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Setup installs the handler for format and level as the slog default.
func Setup(out io.Writer, format, level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	h, err := NewHandler(out, format, l)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}
