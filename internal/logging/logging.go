// Package logging builds the process logger: human-readable text on stderr
// and, optionally, a JSON log file rotated by lumberjack.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures [New].
type Options struct {
	Level slog.Level

	// Console receives text output. Defaults to os.Stderr.
	Console io.Writer

	// File, when set, receives JSON output rotated at MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger writing to the console and, if opts.File is set, to
// the rotated log file. The returned closer releases the file; it is never
// nil.
func New(opts Options) (*slog.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	text := slog.NewTextHandler(console, hopts)

	if opts.File == "" {
		return slog.New(text), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(rotator, hopts))), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// MinLevel returns a middleware that drops records below level before they
// reach the wrapped handler. It gates handlers that have no level option of
// their own, such as the OTel bridge.
func MinLevel(level slog.Leveler) slogmulti.Middleware {
	if level == nil {
		level = slog.LevelInfo
	}
	return slogmulti.NewEnabledInlineMiddleware(func(ctx context.Context, l slog.Level, next func(context.Context, slog.Level) bool) bool {
		return l >= level.Level() && next(ctx, l)
	})
}
