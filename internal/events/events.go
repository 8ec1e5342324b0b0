// Package events carries batch progress from the orchestrator and fetch
// workers to whoever renders it.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// EventType identifies the kind of event
type EventType string

const (
	EventPoll          EventType = "poll"           // One download-retrieve round finished
	EventBatchComplete EventType = "batch_complete" // All fetches of a batch joined

	EventTransferQueued    EventType = "transfer_queued"    // Fetch dispatched, waiting for a slot
	EventTransferStarted   EventType = "transfer_started"   // Slot acquired, request sent
	EventTransferRetrying  EventType = "transfer_retrying"  // Attempt failed, backing off
	EventTransferCompleted EventType = "transfer_completed" // File persisted
	EventTransferFailed    EventType = "transfer_failed"    // Attempts exhausted or cancelled
)

// Event is implemented by every published event.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// PollEvent reports the state of preparation tickets after a retrieve round.
// Round 0 is the immediate retrieve that follows download-request.
type PollEvent struct {
	BaseEvent
	Label    string
	Round    int
	Pending  int
	Resolved int
	Total    int
	Elapsed  time.Duration
}

// BatchEvent summarizes a finished batch.
type BatchEvent struct {
	BaseEvent
	Label     string
	Results   int
	Abandoned int
	Failed    int
	Duration  time.Duration
}

// TransferEvent reports a state change of one fetch.
type TransferEvent struct {
	BaseEvent
	TaskID  string
	URL     string
	Name    string
	Attempt int
	Error   error
}

// NewPollEvent stamps a PollEvent.
func NewPollEvent(label string, round, pending, resolved, total int, elapsed time.Duration) *PollEvent {
	return &PollEvent{
		BaseEvent: BaseEvent{EventType: EventPoll, Time: time.Now()},
		Label:     label,
		Round:     round,
		Pending:   pending,
		Resolved:  resolved,
		Total:     total,
		Elapsed:   elapsed,
	}
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events that do
// not fit a subscriber's buffer are dropped and counted. A nil bus ignores
// the call.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from a specific event type
// and closes it.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			close(subCh)
			return
		}
	}
}

// DroppedEvents returns the number of events dropped due to full buffers.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
