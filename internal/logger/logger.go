// Package logger configures the process-wide structured logger.
//
// Event names are snake_case ("ingest_progress") and details are passed as
// key/value attributes so runs can be grepped or shipped as JSON.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

// Options selects the handler.
type Options struct {
	Level  string // debug, info, warn, error (default info)
	Format string // text or json (default text)
}

// New builds a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	ho := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(opts.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, ho)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, ho)), nil
	default:
		return nil, fmt.Errorf("logger: unknown format %q", opts.Format)
	}
}

// Setup installs a stderr logger as both L() and slog.Default().
func Setup(opts Options) (*slog.Logger, error) {
	l, err := New(os.Stderr, opts)
	if err != nil {
		return nil, err
	}
	current.Store(l)
	slog.SetDefault(l)
	return l, nil
}

// L returns the logger installed by Setup, or slog.Default().
func L() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logger: unknown level %q", s)
}
