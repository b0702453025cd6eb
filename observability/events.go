package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	acerrors "github.com/scttfrdmn/acbench/errors"
)

// EventType classifies a data-quality event.
type EventType string

const (
	ArtifactMissing    EventType = "artifact_missing"
	RecordMalformed    EventType = "record_malformed"
	InvariantViolated  EventType = "invariant_violated"
	ConfigMismatch     EventType = "configuration_mismatch"
	InsufficientData   EventType = "insufficient_data"
	RunsDropped        EventType = "runs_dropped"
	TimeoutsRemoved    EventType = "timeouts_removed"
	ComparisonFinished EventType = "comparison_finished"
	OtherWarning       EventType = "warning"
)

// Severity of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one data-quality finding of an analysis: what was skipped,
// dropped or could not be computed, and where.
type Event struct {
	Type         EventType      `json:"event_type"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	Scenario     string         `json:"scenario,omitempty"`
	Configurator string         `json:"configurator,omitempty"`
	Path         string         `json:"path,omitempty"`
	Line         int            `json:"line,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	TraceID      string         `json:"trace_id,omitempty"`
	SpanID       string         `json:"span_id,omitempty"`
}

// NewEvent creates an event carrying the trace context of ctx.
func NewEvent(ctx context.Context, eventType EventType, severity Severity, message string) *Event {
	event := &Event{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
		event.SpanID = sc.SpanID().String()
	}
	return event
}

// EventFromError classifies err by the error taxonomy.
func EventFromError(ctx context.Context, scenario, configurator string, err error) *Event {
	var (
		missing   *acerrors.MissingArtifactError
		malformed *acerrors.MalformedRecordError
		invariant *acerrors.InvariantViolationError
		mismatch  *acerrors.ConfigurationMismatchError
		noData    *acerrors.InsufficientDataError
	)

	event := NewEvent(ctx, OtherWarning, SeverityWarning, err.Error())
	switch {
	case errors.As(err, &missing):
		event.Type, event.Path = ArtifactMissing, missing.Path
	case errors.As(err, &malformed):
		event.Type, event.Path, event.Line = RecordMalformed, malformed.Path, malformed.Line
	case errors.As(err, &invariant):
		event.Type, event.Path, event.Line = InvariantViolated, invariant.Path, invariant.Line
	case errors.As(err, &mismatch):
		event.Type, event.Path = ConfigMismatch, mismatch.Path
		event.Metadata = map[string]any{"incumbent_ids": mismatch.IDs}
	case errors.As(err, &noData):
		event.Type = InsufficientData
		event.Metadata = map[string]any{"statistic": noData.Statistic}
		if configurator == "" {
			configurator = noData.Configurator
		}
	case errors.Is(err, acerrors.ErrNoData), errors.Is(err, acerrors.ErrNoTrainingData):
		event.Type = InsufficientData
	default:
		if !acerrors.IsRecoverable(err) {
			event.Severity = SeverityError
		}
	}
	event.Scenario = scenario
	event.Configurator = configurator
	return event
}

// EventSink receives events.
type EventSink interface {
	WriteEvent(event *Event) error
}

// JSONEventSink writes events as JSON lines.
type JSONEventSink struct {
	w  io.Writer
	mu sync.Mutex
}

// NewJSONEventSink creates a sink writing to w. Nil writes to stderr.
func NewJSONEventSink(w io.Writer) *JSONEventSink {
	if w == nil {
		w = os.Stderr
	}
	return &JSONEventSink{w: w}
}

// WriteEvent writes one line.
func (s *JSONEventSink) WriteEvent(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.w, string(data))
	return err
}

// FileEventSink appends JSON lines to a file.
type FileEventSink struct {
	*JSONEventSink
	file *os.File
}

// NewFileEventSink opens (or creates) path for appending.
func NewFileEventSink(path string) (*FileEventSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &FileEventSink{JSONEventSink: NewJSONEventSink(file), file: file}, nil
}

// Close closes the file.
func (s *FileEventSink) Close() error {
	return s.file.Close()
}

// EventLog fans events out to its sinks and counts them by type. A nil
// EventLog discards everything.
type EventLog struct {
	mu     sync.Mutex
	sinks  []EventSink
	counts map[EventType]int
	onErr  func(error)
}

// NewEventLog creates a log writing to sinks.
func NewEventLog(sinks ...EventSink) *EventLog {
	return &EventLog{
		sinks:  sinks,
		counts: make(map[EventType]int),
		onErr: func(err error) {
			fmt.Fprintf(os.Stderr, "event sink error: %v\n", err)
		},
	}
}

// Record counts the event and writes it to every sink. Sink failures are
// reported but never returned.
func (l *EventLog) Record(event *Event) {
	if l == nil || event == nil {
		return
	}
	l.mu.Lock()
	l.counts[event.Type]++
	sinks := l.sinks
	l.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.WriteEvent(event); err != nil {
			l.onErr(err)
		}
	}
}

// RecordError records EventFromError(ctx, scenario, configurator, err).
func (l *EventLog) RecordError(ctx context.Context, scenario, configurator string, err error) {
	if l == nil || err == nil {
		return
	}
	l.Record(EventFromError(ctx, scenario, configurator, err))
}

// Counts returns a copy of the per-type counts.
func (l *EventLog) Counts() map[EventType]int {
	out := make(map[EventType]int)
	if l == nil {
		return out
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}
