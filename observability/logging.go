package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceContextHandler is a slog.Handler that adds trace context to log records.
type TraceContextHandler struct {
	handler slog.Handler
}

// NewTraceContextHandler creates a new handler that adds trace context.
func NewTraceContextHandler(handler slog.Handler) *TraceContextHandler {
	return &TraceContextHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *TraceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds trace_id and span_id when ctx carries a valid span.
func (h *TraceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanContext.TraceID().String()),
			slog.String("span_id", spanContext.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, record)
}

// WithAttrs returns a new handler with additional attributes.
func (h *TraceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group.
func (h *TraceContextHandler) WithGroup(name string) slog.Handler {
	return &TraceContextHandler{handler: h.handler.WithGroup(name)}
}

// StructuredHandler writes one flat JSON object per record. Grouped
// attributes are prefixed with "group.".
type StructuredHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewStructuredHandler creates a JSON handler writing to w. A nil w writes to
// stderr, keeping stdout free for reports.
func NewStructuredHandler(w io.Writer, level slog.Leveler) *StructuredHandler {
	if w == nil {
		w = os.Stderr
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &StructuredHandler{w: w, mu: &sync.Mutex{}, level: level}
}

// Enabled reports whether level reaches the handler's minimum.
func (h *StructuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *StructuredHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

// Handle formats and outputs the log record as JSON.
func (h *StructuredHandler) Handle(ctx context.Context, record slog.Record) error {
	entry := make(map[string]any, record.NumAttrs()+len(h.attrs)+4)
	entry["timestamp"] = record.Time.Format(time.RFC3339)
	entry["level"] = record.Level.String()
	entry["message"] = record.Message

	if record.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{record.PC})
		f, _ := fs.Next()
		entry["source"] = fmt.Sprintf("%s:%d", f.File, f.Line)
	}

	for _, attr := range h.attrs {
		entry[attr.Key] = jsonValue(attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry[h.key(attr.Key)] = jsonValue(attr.Value)
		return true
	})

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = fmt.Fprintln(h.w, string(data))
	return err
}

// jsonValue converts values json cannot encode as is.
func jsonValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

// WithAttrs returns a new handler with additional attributes.
func (h *StructuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &next
}

// WithGroup returns a new handler with the given group.
func (h *StructuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// ParseLevel resolves "debug", "info", "warn" or "error".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewLogger builds a logger writing to w, as JSON when structured.
func NewLogger(w io.Writer, level slog.Level, structured bool, includeTraceContext bool) *slog.Logger {
	var handler slog.Handler
	if structured {
		handler = NewStructuredHandler(w, level)
	} else {
		if w == nil {
			w = os.Stderr
		}
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	if includeTraceContext {
		handler = NewTraceContextHandler(handler)
	}
	return slog.New(handler)
}

// ConfigureLogging installs a stderr logger as the slog default.
func ConfigureLogging(level slog.Level, structured bool, includeTraceContext bool) {
	slog.SetDefault(NewLogger(os.Stderr, level, structured, includeTraceContext))
}
