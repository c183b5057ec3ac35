package coachd

import (
	"fmt"
	"sync"

	"github.com/mindloop/voicecoach/pkg/jsontime"
)

// Event is one observable AI-cognition event: every memory update,
// decision, and safety screening the server makes is published here so
// the admin surface can watch the coach think.
type Event struct {
	Type          string         `json:"event_type"`
	CorrelationID string         `json:"correlation_id"`
	SessionID     string         `json:"session_id"`
	TurnNumber    int            `json:"turn_number"`
	Time          jsontime.Milli `json:"timestamp"`
	Data          map[string]any `json:"data,omitempty"`

	// Reason explains in plain words why the event happened.
	Reason string `json:"reason,omitempty"`
}

// CorrelationID ties all events of one conversation turn together.
func correlationID(sessionID string, turn int) string {
	return fmt.Sprintf("%s-turn%d", sessionID, turn)
}

const defaultBusCapacity = 500

// Bus fans events out to live subscribers and keeps a bounded ring of
// recent events for replay and the pull-based admin API.
type Bus struct {
	mu     sync.Mutex
	ring   []Event
	start  int
	count  int
	subs   map[int]chan Event
	nextID int
}

// NewBus creates a bus retaining the given number of recent events.
// capacity <= 0 uses the default of 500.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultBusCapacity
	}
	return &Bus{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish stamps and delivers an event. Slow subscribers lose events
// rather than block the publisher.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = jsontime.Now()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = correlationID(ev.SessionID, ev.TurnNumber)
	}

	b.mu.Lock()
	idx := (b.start + b.count) % len(b.ring)
	if b.count == len(b.ring) {
		b.start = (b.start + 1) % len(b.ring)
	} else {
		b.count++
	}
	b.ring[idx] = ev
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe returns a channel of future events and a cancel function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recent returns up to n of the newest events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]Event, 0, n)
	for i := b.count - n; i < b.count; i++ {
		out = append(out, b.ring[(b.start+i)%len(b.ring)])
	}
	return out
}
