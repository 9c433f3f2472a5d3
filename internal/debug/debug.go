// Package debug provides structured, deterministic audit events for the
// simulation pipeline. Payload keys serialize in sorted order so two runs
// can be diffed byte for byte.
package debug

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is one structured audit record scoped to a pipeline stage.
type Event struct {
	Stage   string         `json:"stage"`
	TS      time.Time      `json:"ts"`
	Site    string         `json:"site,omitempty"`
	Array   string         `json:"array,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Sink receives audit events. Implementations must tolerate concurrent Emit
// calls from per-site and per-array goroutines.
type Sink interface {
	Emit(stage string, payload map[string]any, ts time.Time, site, array string)
}

// Null discards all events.
type Null struct{}

func (Null) Emit(string, map[string]any, time.Time, string, string) {}

// List collects events in memory; used in tests.
type List struct {
	mu     sync.Mutex
	events []Event
}

func (l *List) Emit(stage string, payload map[string]any, ts time.Time, site, array string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{Stage: stage, TS: ts, Site: site, Array: array, Payload: payload})
}

// Events returns a copy of everything collected so far.
func (l *List) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Find returns all collected events for a stage.
func (l *List) Find(stage string) []Event {
	var out []Event
	for _, e := range l.Events() {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// JSONLWriter writes one JSON object per event. encoding/json marshals map
// keys in sorted order, which gives the deterministic serialization the
// audit contract requires.
type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w)}
}

func (j *JSONLWriter) Emit(stage string, payload map[string]any, ts time.Time, site, array string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	// Encode errors are swallowed: audit output is best effort and must
	// never fail the forecast itself.
	_ = j.enc.Encode(Event{Stage: stage, TS: ts, Site: site, Array: array, Payload: payload})
}

// Recorder funnels events from concurrent producers through a single
// consumer goroutine that owns the inner sink, preserving non-interleaved
// ordering without a lock on the output itself.
type Recorder struct {
	ch   chan Event
	done chan struct{}
}

// NewRecorder starts the consumer goroutine. Close must be called to flush.
func NewRecorder(inner Sink) *Recorder {
	r := &Recorder{
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for e := range r.ch {
			inner.Emit(e.Stage, e.Payload, e.TS, e.Site, e.Array)
		}
	}()
	return r
}

func (r *Recorder) Emit(stage string, payload map[string]any, ts time.Time, site, array string) {
	r.ch <- Event{Stage: stage, TS: ts, Site: site, Array: array, Payload: payload}
}

// Close stops accepting events and blocks until everything queued has been
// written to the inner sink.
func (r *Recorder) Close() {
	close(r.ch)
	<-r.done
}

// Scoped injects fixed site/array context into every emit, so stage code
// doesn't thread identifiers through each call.
type Scoped struct {
	Inner Sink
	Site  string
	Array string
}

func (s Scoped) Emit(stage string, payload map[string]any, ts time.Time, site, array string) {
	if site == "" {
		site = s.Site
	}
	if array == "" {
		array = s.Array
	}
	s.Inner.Emit(stage, payload, ts, site, array)
}
