package queue

import (
	"sync"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
)

// EventType classifies queue updates pushed to UI subscribers.
type EventType string

const (
	EventBatchStarted   EventType = "batch_started"
	EventItemUpdated    EventType = "item_updated"
	EventBatchCompleted EventType = "batch_completed"
)

// Event is a sequenced queue update.
type Event struct {
	Seq       int64              `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	Type      EventType          `json:"type"`
	BatchID   string             `json:"batch_id,omitempty"`
	Item      *models.QueueItem  `json:"item,omitempty"`
	Items     []models.QueueItem `json:"items,omitempty"`
}

// EventBus stores recent events, provides incremental reads and wakes subscribers.
// It implements Notifier.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event

	subMu     sync.Mutex
	nextSubID int
	subs      map[int]chan struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]chan struct{}),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	b.mu.Unlock()

	b.wake()
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence of the newest event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Subscribe returns a channel signalled after each Publish and a cancel func.
// Signals coalesce; readers catch up with Since.
func (b *EventBus) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.subMu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = ch
	b.subMu.Unlock()

	return ch, func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

func (b *EventBus) wake() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *EventBus) BatchStarted(batchID string, items []models.QueueItem) {
	b.Publish(Event{Type: EventBatchStarted, BatchID: batchID, Items: items})
}

func (b *EventBus) ItemUpdated(batchID string, item models.QueueItem) {
	b.Publish(Event{Type: EventItemUpdated, BatchID: batchID, Item: &item})
}

func (b *EventBus) BatchCompleted(batchID string, results []models.QueueItem) {
	b.Publish(Event{Type: EventBatchCompleted, BatchID: batchID, Items: results})
}
