package token

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType names a lifecycle event
type EventType string

const (
	EventTokenRefreshed EventType = "token:refreshed"
	EventTokenWarning   EventType = "token:warning"
	EventLogout         EventType = "auth:logout"
)

// LogoutReason explains why a session ended
type LogoutReason string

const (
	// ReasonAutoLogout is used when the user has been inactive for too long
	ReasonAutoLogout LogoutReason = "auto-logout"

	// ReasonManual is used when the user signs out
	ReasonManual LogoutReason = "manual"

	// ReasonSessionExpired is used when the token can no longer be renewed
	ReasonSessionExpired LogoutReason = "session-expired"
)

// Event is published to subscribers on every lifecycle transition.
// Only the fields relevant to Type are set.
type Event struct {
	Type        EventType
	Token       string
	User        json.RawMessage
	MinutesLeft int
	Reason      LogoutReason
	At          time.Time
}

// Bus fans events out to registered observers
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a func that unregisters it
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e synchronously to every subscriber.
// Handlers run outside the bus lock and may subscribe or unsubscribe.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}
