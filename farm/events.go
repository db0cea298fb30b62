package farm

import (
	"sync"
	"time"

	"github.com/spoolworks/printfarm/job"
)

// EventType identifies what happened to a job or the queue
type EventType string

const (
	EventJobSubmitted   EventType = "job_submitted"
	EventJobApproved    EventType = "job_approved"
	EventJobRejected    EventType = "job_rejected"
	EventJobResubmitted EventType = "job_resubmitted"
	EventJobScheduled   EventType = "job_scheduled"
	EventJobStarted     EventType = "job_started"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventQueueReordered EventType = "queue_reordered"
	EventRunCompleted   EventType = "scheduling_run_completed"
)

// Event is a fleet state change notification. From and To carry the job
// status transition for lifecycle events; queue and run events leave them
// empty.
type Event struct {
	Type      EventType  `json:"type"`
	JobID     string     `json:"job_id,omitempty"`
	PrinterID string     `json:"printer_id,omitempty"`
	From      job.Status `json:"from,omitempty"`
	To        job.Status `json:"to,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	At        time.Time  `json:"at"`
}

// eventBus fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses events rather than stalling
// operations.
type eventBus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

func newEventBus() *eventBus {
	return &eventBus{}
}

// Subscribe returns a buffered channel of future events
func (b *eventBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 64)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

func (b *eventBus) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
