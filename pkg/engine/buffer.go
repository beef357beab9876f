package engine

import (
	"time"

	"github.com/hervehildenbrand/honeypot-radar/pkg/models"
)

// Buffer holds the events currently visible on a dashboard view,
// ordered by insertion. Two eviction rules apply: the oldest entries
// are dropped when the buffer exceeds its capacity, regardless of
// remaining lifetime, and any entry whose opacity decays to 0 is
// removed on the tick that reaches it. Every buffered event therefore
// always has opacity strictly greater than 0.
//
// Not safe for concurrent use; the owning engine serializes access.
type Buffer struct {
	capacity int
	ttl      time.Duration
	events   []models.VisibleEvent
}

// NewBuffer creates a buffer holding at most capacity events, each
// visible for ttl. Callers validate both before construction.
func NewBuffer(capacity int, ttl time.Duration) *Buffer {
	return &Buffer{
		capacity: capacity,
		ttl:      ttl,
		events:   make([]models.VisibleEvent, 0, capacity),
	}
}

// Insert appends e with age 0 and full visual intensity. If the buffer
// is over capacity afterwards, the oldest entries are dropped.
func (b *Buffer) Insert(e models.Event, now time.Time) {
	vis := Decay(0, b.ttl)
	b.events = append(b.events, models.VisibleEvent{
		Event:      e,
		InsertedAt: now,
		Opacity:    vis.Opacity,
		Radius:     vis.Radius,
		PulsePhase: vis.PulsePhase,
	})
	if drop := len(b.events) - b.capacity; drop > 0 {
		b.events = append(b.events[:0], b.events[drop:]...)
	}
}

// Tick advances every buffered event by delta, recomputes its visual
// attributes and removes entries that have fully decayed. Negative
// deltas are clamped to 0.
func (b *Buffer) Tick(delta time.Duration) {
	if delta < 0 {
		delta = 0
	}
	live := b.events[:0]
	for i := range b.events {
		ev := b.events[i]
		ev.Age += delta
		vis := Decay(ev.Age, b.ttl)
		if vis.Opacity <= 0 {
			continue
		}
		ev.Opacity = vis.Opacity
		ev.Radius = vis.Radius
		ev.PulsePhase = vis.PulsePhase
		live = append(live, ev)
	}
	b.events = live
}

// Snapshot returns a copy of the buffered events in insertion order.
func (b *Buffer) Snapshot() []models.VisibleEvent {
	out := make([]models.VisibleEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Reset drops all buffered events.
func (b *Buffer) Reset() {
	b.events = b.events[:0]
}
