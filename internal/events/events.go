// Package events delivers structured progress notifications to an external sink.
//
// Delivery is best effort: a sink that fails or panics never affects the
// operation that emitted the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event names emitted by the engine, in the order they can occur.
const (
	ParseStart          = "parse_start"
	ParseFile           = "parse_file"
	ParseComplete       = "parse_complete"
	CheckpointCreated   = "checkpoint_created"
	ApplyStart          = "apply_start"
	ApplyFile           = "apply_file"
	ApplyComplete       = "apply_complete"
	ApplyPhase          = "apply_phase"
	VerificationRun     = "verification_run"
	Rollback            = "rollback"
	TransactionComplete = "transaction_complete"
)

// Event is a single notification.
type Event struct {
	Name      string
	Timestamp time.Time
	Fields    map[string]any
}

// MarshalJSON flattens Fields next to the event name and timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["event"] = e.Name
	m["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(m)
}

// Sink receives events.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Emitter wraps a Sink with best-effort semantics. A nil *Emitter is valid
// and drops every event.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewEmitter creates an Emitter that forwards to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{
		sink:   sink,
		logger: slog.Default().With("component", "events"),
		now:    time.Now,
	}
}

// Emit sends an event built from alternating key/value pairs.
func (e *Emitter) Emit(name string, kv ...any) {
	if e == nil || e.sink == nil {
		return
	}
	ev := Event{Name: name, Timestamp: e.now(), Fields: fieldsFrom(kv)}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("event sink panicked", "event", name, "panic", r)
		}
	}()
	if err := e.sink.Emit(ev); err != nil {
		e.logger.Debug("event delivery failed", "event", name, "error", err)
	}
}

func fieldsFrom(kv []any) map[string]any {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if err, isErr := kv[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		fields["!BADKEY"] = kv[len(kv)-1]
	}
	return fields
}

// JSONLines writes one JSON object per event.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLines creates a sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

func (j *JSONLines) Emit(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(e)
}

// Slog mirrors events into a structured logger at Debug level.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) Emit(e Event) error {
	attrs := make([]slog.Attr, 0, len(e.Fields))
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.Logger.LogAttrs(context.Background(), slog.LevelDebug, e.Name, attrs...)
	return nil
}

// Multi fans out to several sinks, continuing past failures.
type Multi []Sink

func (m Multi) Emit(e Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}
