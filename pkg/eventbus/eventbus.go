// Package eventbus provides in-process broadcast fan-out of lifecycle
// events to N subscribers. Unlike the teacher's pkg/events, which fans
// out across pods via Postgres LISTEN/NOTIFY, this is a single-process
// daemon with no multi-replica requirement, so the cross-pod machinery
// is not carried — only the typed-event, bounded-channel shape is kept.
package eventbus

import (
	"log/slog"
	"sync"
)

// EventType identifies the kind of lifecycle event, mirroring the
// teacher's string-constant EventType convention in pkg/events/types.go.
type EventType string

const (
	EventTypeScreenshotCaptured       EventType = "screenshot.captured"
	EventTypeWindowReady              EventType = "window.ready"
	EventTypeAnalysisStarted          EventType = "analysis.started"
	EventTypeAnalysisCompleted        EventType = "analysis.completed"
	EventTypeAnalysisFailed           EventType = "analysis.failed"
	EventTypeVideoGenerationStarted   EventType = "video_generation.started"
	EventTypeVideoGenerationCompleted EventType = "video_generation.completed"
	EventTypeVideoGenerationFailed    EventType = "video_generation.failed"
	EventTypeConfigUpdated            EventType = "config.updated"
	EventTypeStorageCleanupStarted    EventType = "storage_cleanup.started"
	EventTypeStorageCleanupCompleted  EventType = "storage_cleanup.completed"
)

// Event is the envelope broadcast on the bus. Payload is the
// event-specific struct (e.g. WindowReadyPayload); callers type-assert.
type Event struct {
	Type    EventType
	Payload any
}

// WindowReadyPayload is the core trigger event's payload: a capture
// window has closed and is ready for the orchestrator to pick up.
type WindowReadyPayload struct {
	Start      int64 // epoch millis
	End        int64 // epoch millis
	FrameCount int
}

// DefaultCapacity is the bounded channel size per subscriber, matching
// spec §4.4's default.
const DefaultCapacity = 1000

// Bus is a broadcast channel with bounded per-subscriber capacity.
// Publish never blocks: a full subscriber channel causes that message
// to be dropped for that subscriber only, with a warning logged —
// exactly spec §4.4's "non-blocking, drop on no consumer / slow
// consumer" contract.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	capacity    int
}

// New creates a Bus with the given per-subscriber channel capacity. A
// capacity of 0 uses DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subscribers: make(map[int]chan Event),
		capacity:    capacity,
	}
}

// Subscription is a handle returned by Subscribe; call Unsubscribe to
// stop receiving events and release the channel.
type Subscription struct {
	id  int
	ch  chan Event
	bus *Bus
}

// C returns the subscription's receive channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Unsubscribe removes this subscriber from the bus and closes its
// channel. Safe to call once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if ch, ok := s.bus.subscribers[s.id]; ok {
		delete(s.bus.subscribers, s.id)
		close(ch)
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.capacity)
	b.subscribers[id] = ch
	return &Subscription{id: id, ch: ch, bus: b}
}

// Publish delivers evt to every current subscriber; the order in which
// subscribers receive it is not defined. A subscriber whose channel is
// full does not block the others;
// it is skipped and a warning is logged, matching spec §4.4's
// "subscribers missing messages due to slow consumption should log and
// continue" requirement.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			slog.Warn("eventbus: dropping event for slow subscriber", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// SubscriberCount reports the current number of live subscribers,
// mainly for tests and status reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
