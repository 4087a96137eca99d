// Package telemetry carries structured decision events (selection made,
// policy resolved, guardrail intervention, stream halted) to a sink. The
// core behaves identically with the no-op sink.
package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/initializ/cip/logging"
)

// Event names emitted by the engine.
const (
	EventSelectionMade         = "selection.made"
	EventPolicyResolved        = "policy.resolved"
	EventGuardrailIntervention = "guardrail.intervention"
	EventStreamHalted          = "stream.halted"
	EventStreamFinalized       = "stream.finalized"
	EventRegistryReloaded      = "registry.reloaded"
)

// Event is one structured telemetry record.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(name string, attrs map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Attributes: attrs,
		Timestamp:  time.Now().UTC(),
	}
}

// Sink receives events. Emit must not block the caller for long and must be
// safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// Emit sends a new event to sink, ignoring a nil sink.
func Emit(sink Sink, name string, attrs map[string]any) {
	if sink == nil {
		return
	}
	sink.Emit(NewEvent(name, attrs))
}

type noop struct{}

func (noop) Emit(Event) {}

// Noop returns a sink that drops every event.
func Noop() Sink { return noop{} }

// MemorySink records events in memory. Useful in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (m *MemorySink) Emit(e Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Named returns the recorded events with the given name.
func (m *MemorySink) Named(name string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// LogSink writes each event to a Logger at info level.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(l)}
}

// Emit logs e.
func (s *LogSink) Emit(e Event) {
	fields := make(map[string]any, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		fields[k] = v
	}
	fields["event_id"] = e.ID
	s.logger.Info(e.Name, fields)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Emit forwards e to every non-nil sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
