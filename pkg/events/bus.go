// Package events implements the bounded, multi-producer multi-subscriber
// event bus (spec §4.2). It is in-memory only — persistence (JobResult,
// CourseAudit) is handled by the producers themselves, not by this bus.
//
// Adapted from the teacher's pkg/events.ConnectionManager broadcast/
// subscribe shape, but the wire is an in-process channel fan-out instead of
// Postgres LISTEN/NOTIFY: the spec's C2 is explicitly an in-memory bounded
// broadcast channel.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/campusgraph/coursesync/pkg/metrics"
	"github.com/campusgraph/coursesync/pkg/model"
)

// Capacity is the bounded size of each subscriber's channel (spec §4.2).
const Capacity = 1024

// Bus is a bounded broadcast channel of typed events. Many producers can
// publish concurrently; many short-lived subscribers can each receive an
// independent, ordered-per-producer stream. A lagging subscriber has its
// oldest events dropped rather than blocking the bus.
type Bus struct {
	mu   sync.RWMutex
	subs map[int64]*Subscription
	next int64
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	id      int64
	bus     *Bus
	ch      chan model.Event
	lagged  int64 // count of events dropped due to a full channel
	mu      sync.Mutex
	closed  bool
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subs: make(map[int64]*Subscription)}
}

// Subscribe registers a new subscriber and returns its channel handle.
// Callers MUST call Unsubscribe when done (typically via defer) to avoid
// leaking the subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &Subscription{
		id:  id,
		bus: b,
		ch:  make(chan model.Event, Capacity),
	}
	b.subs[id] = sub
	return sub
}

// Unsubscribe removes a subscription from the bus.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Publish fans an event out to every current subscriber. Per-producer
// ordering is preserved because Publish only ever appends to each
// subscriber's channel in call order; there is no cross-producer ordering
// guarantee (spec §5).
//
// A full subscriber channel means that subscriber is lagging: rather than
// block the publisher (which would stall every other producer sharing this
// bus), its oldest buffered event is dropped to make room, and the new
// event is enqueued. The subscriber can detect this via Lagged().
func (b *Bus) Publish(evt model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.offer(evt)
	}
}

func (s *Subscription) offer(evt model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	// Channel full: drop the oldest buffered event and retry once.
	select {
	case <-s.ch:
		s.lagged++
		metrics.EventBufferDroppedTotal.Inc()
		slog.Warn("event subscriber lagging, dropping oldest event", "subscriber_id", s.id, "lagged_total", s.lagged)
	default:
	}
	select {
	case s.ch <- evt:
	default:
		// Another offer() raced us and refilled the channel; this event is
		// lost. Exceedingly rare under the RWMutex fan-out above (only
		// possible if a second producer interleaves between our drain and
		// retry), so we just count it rather than spin.
		s.lagged++
		metrics.EventBufferDroppedTotal.Inc()
	}
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Lagged returns how many events have been dropped for this subscriber
// since it subscribed.
func (s *Subscription) Lagged() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// Next blocks for the next event or until ctx is done.
func (s *Subscription) Next(ctx context.Context) (model.Event, bool) {
	select {
	case evt, ok := <-s.ch:
		return evt, ok
	case <-ctx.Done():
		return model.Event{}, false
	}
}
