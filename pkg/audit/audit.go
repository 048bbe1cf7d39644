// Package audit records the outcome of every risk-bearing command: what was
// submitted, how it was classified, and whether it executed, went pending,
// or was rejected. Events live in a ring buffer queryable over the wire; an
// optional file sink appends them durably in compressed form.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of one command submission.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomePending  Outcome = "pending"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Event is one audit record.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID string    `json:"connection_id"`
	CommandType  string    `json:"command_type"`
	Tier         string    `json:"tier"`
	Outcome      Outcome   `json:"outcome"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Whitelisted  bool      `json:"whitelisted,omitempty"`
}

// Sink receives every logged event; the file sink implements this.
type Sink interface {
	Write(event *Event) error
}

// Trail keeps the most recent events in a circular buffer, optionally
// tee-ing each one into a durable sink.
type Trail struct {
	mu         sync.RWMutex
	events     []*Event
	bufferSize int
	index      int
	count      int
	sink       Sink
}

// NewTrail creates a trail holding up to bufferSize recent events.
func NewTrail(bufferSize int) *Trail {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Trail{
		events:     make([]*Event, bufferSize),
		bufferSize: bufferSize,
	}
}

// SetSink attaches a durable sink; every event logged afterwards is written
// through. A sink write failure does not fail the command that produced the
// event.
func (t *Trail) SetSink(sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Log records an event, assigning id and timestamp if unset.
func (t *Trail) Log(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	t.mu.Lock()
	t.events[t.index] = event
	t.index = (t.index + 1) % t.bufferSize
	if t.count < t.bufferSize {
		t.count++
	}
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		// Best effort; the trail itself is the source of truth for queries.
		_ = sink.Write(event)
	}
}

// Tail returns up to n most recent events, oldest first.
func (t *Trail) Tail(n int) []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > t.count {
		n = t.count
	}
	out := make([]*Event, 0, n)
	for i := t.count - n; i < t.count; i++ {
		idx := (t.index - t.count + i + t.bufferSize) % t.bufferSize
		if e := t.events[idx]; e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of buffered events.
func (t *Trail) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}
