// Package activity keeps a fixed-capacity in-memory ring of recent intake
// and trigger events for operator inspection. The buffer is process-local;
// reads return a snapshot.
package activity

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of events retained.
const DefaultCapacity = 50

// EventType classifies activity entries.
type EventType string

const (
	EventWebhookAccepted EventType = "webhook_accepted"
	EventWebhookIgnored  EventType = "webhook_ignored"
	EventWebhookRejected EventType = "webhook_rejected"
	EventManualTrigger   EventType = "manual_trigger"
	EventRetry           EventType = "retry"
)

// Event is one recorded intake or control action.
type Event struct {
	Time        time.Time `json:"time"`
	Type        EventType `json:"type"`
	Provider    string    `json:"provider,omitempty"`
	TenantSlug  string    `json:"tenant_slug,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	MRIID       int       `json:"mr_iid,omitempty"`
	HeadSHA     string    `json:"head_sha,omitempty"`
	ReviewRunID string    `json:"review_run_id,omitempty"`
	JobID       string    `json:"job_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Buffer is a fixed-capacity ring. Oldest entries are evicted first.
type Buffer struct {
	mu       sync.Mutex
	events   []Event
	start    int
	count    int
	capacity int
}

// NewBuffer creates a buffer with the given capacity (DefaultCapacity if <= 0).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// Record appends an event, evicting the oldest when full.
// A zero Time is stamped with the current time.
func (b *Buffer) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % b.capacity
	b.events[idx] = e
	if b.count < b.capacity {
		b.count++
	} else {
		b.start = (b.start + 1) % b.capacity
	}
}

// Tail returns up to limit events, newest first. limit <= 0 or beyond the
// retained count returns everything retained.
func (b *Buffer) Tail(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > b.count {
		limit = b.count
	}

	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		// Walk backwards from the newest entry
		idx := (b.start + b.count - 1 - i) % b.capacity
		out[i] = b.events[idx]
	}
	return out
}

// Len returns the number of retained events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
