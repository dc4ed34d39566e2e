package jobs

import (
	"sync"
	"time"

	"github.com/ownlingo/ownlingo/internal/globaltime"
)

type EventKind string

const (
	EventSchedulerStarted EventKind = "started"
	EventSchedulerStopped EventKind = "stopped"
	EventProgress         EventKind = "progress"
	EventJobCompleted     EventKind = "job:completed"
	EventJobFailed        EventKind = "job:failed"
	EventJobCancelled     EventKind = "job:cancelled"
	EventItemCompleted    EventKind = "item:completed"
	EventItemCacheHit     EventKind = "item:cache-hit"
	EventItemFailed       EventKind = "item:failed"
	EventItemRetry        EventKind = "item:retry"
)

// Event is one engine lifecycle notification. Item fields are zero for
// job-level and scheduler-level events.
type Event struct {
	Kind       EventKind
	JobUUID    string
	JobID      int64
	ItemID     int64
	ResourceID string
	Error      string
	RetryCount int
	Total      int
	Completed  int
	Failed     int
	Progress   int
	At         time.Time
}

// Bus fans engine events out to a single bounded channel. Publish blocks when
// the buffer is full, which applies backpressure to executors rather than
// dropping events.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func NewBus(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish delivers the event, stamping At when unset. Publishing on a closed
// bus is a no-op so late executor goroutines cannot panic during shutdown.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = globaltime.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	// The lock is held across the send; Close must not run concurrently
	// with active publishers.
	b.ch <- event
	b.mu.Unlock()
}

// Events returns the receive side. The channel is closed by Close.
func (b *Bus) Events() <-chan Event {
	if b == nil {
		return nil
	}
	return b.ch
}

// Close is idempotent. Call only after all publishers have stopped.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
