package framecore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

var (
	sinksMu sync.RWMutex
	sinks   []func(*slog.Logger)
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for framecore and all its sub-packages.
// By default, framecore produces no log output.
//
// Pass nil to restore the silent default.
//
// Log levels used by framecore:
//   - [slog.LevelDebug]: per-frame diagnostics (slot selection, reclamation)
//   - [slog.LevelInfo]: lifecycle events (device opened, swapchain rebuilt)
//   - [slog.LevelWarn]: recoverable issues (timeouts, stale swapchain)
//   - [slog.LevelError]: device loss
//
// Example:
//
//	framecore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinksMu.RLock()
	fns := append([]func(*slog.Logger){}, sinks...)
	sinksMu.RUnlock()
	for _, fn := range fns {
		fn(l)
	}
}

// Logger returns the current logger used by framecore.
// Sub-packages call this so they share one configuration without import
// cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// OnLoggerChange registers fn to be called with the new logger every time
// SetLogger runs, and once immediately with the current logger. Backends use
// it to forward the logger to their own logging layer.
func OnLoggerChange(fn func(*slog.Logger)) {
	if fn == nil {
		return
	}
	sinksMu.Lock()
	sinks = append(sinks, fn)
	sinksMu.Unlock()
	fn(Logger())
}
