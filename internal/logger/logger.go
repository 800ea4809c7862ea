// Package logger is the fanout structured-logging stack (JSON file +
// colorized console + event-bus sink), grounded on the teacher's
// internal/logger/logger.go FanoutHandler/ConsoleHandler. The teacher's
// WailsHandler (GUI event emission) is replaced by an EventSinkHandler of
// the same shape, publishing Warn+ records onto the eventbus so log
// consumers don't need a GUI runtime to observe them.
package logger

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

// ANSI color codes.
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Gray   = "\033[37m"
)

// ConsoleHandler writes short colorized lines to out.
type ConsoleHandler struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleHandler(out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{out: out}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	levelColor := Reset
	switch r.Level {
	case slog.LevelDebug:
		levelColor = Gray
	case slog.LevelInfo:
		levelColor = Green
	case slog.LevelWarn:
		levelColor = Yellow
	case slog.LevelError:
		levelColor = Red
	}

	timeStr := r.Time.Format(time.TimeOnly)
	msg := fmt.Sprintf("%s%s%s [%s] %s\n", levelColor, r.Level.String()[:4], Reset, timeStr, r.Message)
	_, err := h.out.Write([]byte(msg))
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *ConsoleHandler) WithGroup(name string) slog.Handler       { return h }

// Record is what EventSinkHandler forwards to its sink.
type Record struct {
	Level   string
	Message string
	Time    time.Time
	Attrs   map[string]any
}

// EventSinkHandler forwards Warn+ records to an injected sink function,
// replacing the teacher's Wails-event emission since no GUI survives this
// transform; the sink is typically the event bus's Publish.
type EventSinkHandler struct {
	mu        sync.Mutex
	sink      func(Record)
	minLevel  slog.Level
}

func NewEventSinkHandler(sink func(Record)) *EventSinkHandler {
	return &EventSinkHandler{sink: sink, minLevel: slog.LevelWarn}
}

func (h *EventSinkHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *EventSinkHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink == nil {
		return nil
	}

	data := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	sink(Record{
		Level:   r.Level.String(),
		Message: r.Message,
		Time:    r.Time,
		Attrs:   data,
	})
	return nil
}

func (h *EventSinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *EventSinkHandler) WithGroup(name string) slog.Handler       { return h }

// FanoutHandler dispatches every record to each wrapped handler.
type FanoutHandler struct {
	handlers []slog.Handler
}

func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		_ = handler.Handle(ctx, r)
	}
	return nil
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: newHandlers}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &FanoutHandler{handlers: newHandlers}
}

// New builds the standard logger: JSON file + console + an event sink.
// logDir is the directory the JSON log is written under (caller picks
// where, unlike the teacher which hardcoded os.UserConfigDir()/Tachyon).
func New(consoleOutput io.Writer, logDir string, sink func(Record)) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "agent.json"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	jsonHandler := slog.NewJSONHandler(f, nil)
	consoleHandler := NewConsoleHandler(consoleOutput)
	eventHandler := NewEventSinkHandler(sink)

	handler := NewFanoutHandler(jsonHandler, consoleHandler, eventHandler)
	return slog.New(handler), nil
}
