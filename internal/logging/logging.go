// Package logging builds the structured logger shared by all components.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options control the logger output.
type Options struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is text or json
	Format string
	// Output defaults to stderr
	Output io.Writer
}

// New returns an slog.Logger writing through a charmbracelet/log handler.
func New(opts Options) (*slog.Logger, error) {
	level, err := log.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	formatter := log.TextFormatter
	switch opts.Format {
	case "", "text":
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handler := log.NewWithOptions(out, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return slog.New(handler), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
