// Package log is the application logger: a slog text handler behind
// package-level helpers, with verbosity set by repeated -v flags.
//
// Components that are constructed once (the GitHub client, the HTTP
// server) take the *slog.Logger from Logger() instead of calling the
// helpers, so tests can inject their own.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Verbosity levels
const (
	LevelQuiet = iota // Default: only errors and warnings
	LevelInfo         // -v: progress messages, cache hits, request logs
	LevelDebug        // -vv: API calls, retries, cache operations
	LevelTrace        // -vvv: full details
)

// slogLevelTrace sits below debug.
const slogLevelTrace = slog.Level(-8)

var (
	// mu guards the package state; the server logs from many goroutines.
	mu         sync.Mutex
	verbosity  int
	logger     *slog.Logger
	output     io.Writer
	inProgress bool
)

// Initialize sets up the global logger with the specified verbosity level.
// It also becomes the slog default so stray slog calls share the output.
func Initialize(level int, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	verbosity = level
	output = w
	logger = newLogger(w, slogLevel(level))
	slog.SetDefault(logger)
}

func slogLevel(level int) slog.Level {
	switch {
	case level >= LevelTrace:
		return slogLevelTrace
	case level >= LevelDebug:
		return slog.LevelDebug
	case level >= LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Info logs at info level (-v)
func Info(msg string, args ...any) {
	if l := begin(LevelInfo); l != nil {
		l.Info(msg, args...)
	}
}

// Debug logs at debug level (-vv)
func Debug(msg string, args ...any) {
	if l := begin(LevelDebug); l != nil {
		l.Debug(msg, args...)
	}
}

// Trace logs at trace level (-vvv)
func Trace(msg string, args ...any) {
	if l := begin(LevelTrace); l != nil {
		l.Log(context.Background(), slogLevelTrace, msg, args...)
	}
}

// Warn logs at warn level (always visible)
func Warn(msg string, args ...any) {
	begin(LevelQuiet).Warn(msg, args...)
}

// Error logs at error level (always visible)
func Error(msg string, args ...any) {
	begin(LevelQuiet).Error(msg, args...)
}

// begin returns the logger when level is enabled, ending a pending
// progress line first so the record does not overwrite it. It returns
// nil when the level is disabled.
func begin(level int) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if verbosity < level {
		return nil
	}
	if inProgress {
		_, _ = fmt.Fprintln(output)
		inProgress = false
	}
	return logger
}

// Progress prints a status line without a newline, shown at info level.
// The next log line or ProgressDone ends it.
func Progress(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if verbosity < LevelInfo {
		return
	}
	inProgress = true
	_, _ = fmt.Fprintf(output, "\r"+format, args...)
}

// ProgressDone completes a progress line with "done".
func ProgressDone() {
	mu.Lock()
	defer mu.Unlock()
	if verbosity >= LevelInfo && inProgress {
		_, _ = fmt.Fprintln(output, " done")
		inProgress = false
	}
}

// ProgressClear erases the current progress line.
func ProgressClear() {
	mu.Lock()
	defer mu.Unlock()
	if inProgress {
		_, _ = fmt.Fprint(output, "\r\033[K")
		inProgress = false
	}
}

// IsInfo returns true if info-level logging is enabled
func IsInfo() bool {
	return Verbosity() >= LevelInfo
}

// IsDebug returns true if debug-level logging is enabled
func IsDebug() bool {
	return Verbosity() >= LevelDebug
}

// IsTrace returns true if trace-level logging is enabled
func IsTrace() bool {
	return Verbosity() >= LevelTrace
}

// Logger returns the configured structured logger for components that take
// a *slog.Logger at construction.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Verbosity returns the current verbosity level
func Verbosity() int {
	mu.Lock()
	defer mu.Unlock()
	return verbosity
}

// SetOutput redirects progress lines; structured records keep the
// writer given to Initialize.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func init() {
	output = os.Stderr
	verbosity = LevelQuiet
	logger = newLogger(output, slog.LevelWarn)
}
