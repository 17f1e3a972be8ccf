// Package logging provides the structured logger shared by every HELIX
// component: the orchestrator, the job bus, the evolution pipeline and
// both CLI binaries.
//
// # Architecture
//
// Logger wraps log/slog with a small layering scheme:
//
//   - Default: stderr, text format, Info level — CLI-friendly.
//   - Optional: a JSON file sink alongside stderr, for helixd's daemon
//     log.
//   - Optional: an Exporter seam for shipping LogEntry values somewhere
//     else (off by default; no implementation ships in this module).
//
// # Thread Safety
//
// Logger is safe for concurrent use; the underlying slog.Logger already
// is, and Close is idempotent.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level mirrors slog's severity ordering without exposing slog to callers
// that only need Debug/Info/Warn/Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is the shape handed to an Exporter.
type LogEntry struct {
	Time    time.Time
	Level   Level
	Message string
	Attrs   map[string]any
}

// Exporter receives log entries asynchronously. Implementations must not
// block the caller for long; Logger does not buffer on their behalf.
type Exporter interface {
	Export(LogEntry)
}

// Config configures a Logger. The zero value logs Info+ to stderr as
// text.
type Config struct {
	Level    Level
	JSON     bool
	LogDir   string // if set, also write {Service}_{YYYY-MM-DD}.log here as JSON
	Service  string
	Exporter Exporter
}

// Logger is the structured logger used throughout HELIX.
type Logger struct {
	mu       sync.Mutex
	slog     *slog.Logger
	file     *os.File
	exporter Exporter
	attrs    []any
}

// New builds a Logger per cfg.
func New(cfg Config) (*Logger, error) {
	l := &Logger{exporter: cfg.Exporter}

	handlers := []slog.Handler{}
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}
	if cfg.JSON {
		handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
	}

	if cfg.LogDir != "" {
		dir := cfg.LogDir
		if len(dir) >= 2 && dir[:2] == "~/" {
			home, err := os.UserHomeDir()
			if err == nil {
				dir = filepath.Join(home, dir[2:])
			}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		service := cfg.Service
		if service == "" {
			service = "helix"
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().UTC().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	l.slog = slog.New(multiHandler(handlers))
	return l, nil
}

// Default returns a Logger writing Info+ text to stderr.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// With returns a derived Logger that always includes the given key/value
// pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file, exporter: l.exporter}
}

func (l *Logger) log(level Level, msg string, args ...any) {
	l.slog.Log(context.Background(), level.toSlog(), msg, args...)
	if l.exporter != nil {
		attrs := make(map[string]any, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			if k, ok := args[i].(string); ok {
				attrs[k] = args[i+1]
			}
		}
		l.exporter.Export(LogEntry{Time: time.Now().UTC(), Level: level, Message: msg, Attrs: attrs})
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// multiHandler fans a record out to several slog.Handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func multiHandler(h []slog.Handler) slog.Handler { return &fanoutHandler{handlers: h} }

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// NopExporter discards entries; useful as an explicit no-op in tests.
type NopExporter struct{}

func (NopExporter) Export(LogEntry) {}

var _ io.Closer = (*Logger)(nil)
