package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType tags a RateLimitEvent.
type EventType string

const (
	EventLimited        EventType = "limited"
	EventBurstActivated EventType = "burst_activated"
	EventExhausted      EventType = "exhausted"
	EventBlacklisted    EventType = "blacklisted"
	EventRecovered      EventType = "recovered"
)

// Event records one admission decision worth observing. Events are recorded
// independently of the error returned to the caller.
type Event struct {
	ID         string
	Type       EventType
	Identifier string
	Kind       Kind
	Timestamp  time.Time
	Details    map[string]any
}

func newEvent(typ EventType, id string, kind Kind, ts time.Time, details map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Identifier: id,
		Kind:       kind,
		Timestamp:  ts,
		Details:    details,
	}
}

// eventLogHeadroom is how many times max the log may hold between cleanup
// cycles before Append starts dropping the oldest events.
const eventLogHeadroom = 4

// EventLog is an append-only, bounded, ordered event history with simple
// observer registration. The cleanup cycle truncates it to max; between
// cycles Append caps it at max*eventLogHeadroom. A max of zero disables
// retention but observers are still notified.
type EventLog struct {
	max int

	mu        sync.RWMutex
	events    []Event
	observers map[uint64]func(Event)
	nextID    uint64
}

// NewEventLog creates a log that the cleanup cycle truncates to max events.
func NewEventLog(max int) *EventLog {
	return &EventLog{
		max:       max,
		observers: make(map[uint64]func(Event)),
	}
}

// Subscribe registers fn to be called for every appended event and returns a
// function that removes it. fn runs on the goroutine that appended the event
// and must not block.
func (l *EventLog) Subscribe(fn func(Event)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.observers, id)
			l.mu.Unlock()
		})
	}
}

// Append records events in order and notifies observers. It must not be
// called while holding a bucket lock.
func (l *EventLog) Append(events ...Event) {
	if len(events) == 0 {
		return
	}

	l.mu.Lock()
	l.events = append(l.events, events...)
	l.trimLocked(l.max * eventLogHeadroom)
	observers := make([]func(Event), 0, len(l.observers))
	for _, fn := range l.observers {
		observers = append(observers, fn)
	}
	l.mu.Unlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

// Events returns a copy of the retained events, oldest first.
func (l *EventLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Truncate keeps only the most recent n events and returns how many were
// dropped.
func (l *EventLog) Truncate(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trimLocked(n)
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *EventLog) trimLocked(n int) int {
	if n < 0 {
		n = 0
	}
	drop := len(l.events) - n
	if drop <= 0 {
		return 0
	}
	kept := make([]Event, n)
	copy(kept, l.events[drop:])
	l.events = kept
	return drop
}
