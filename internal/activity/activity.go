// Package activity tracks when the user last interacted with the application.
package activity

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Signal is a passive interaction signal
type Signal string

const (
	PointerMove Signal = "pointermove"
	KeyPress    Signal = "keypress"
	Scroll      Signal = "scroll"
	Touch       Signal = "touch"
	Click       Signal = "click"
)

// Signals lists the interaction signals the tracker listens to
var Signals = []Signal{PointerMove, KeyPress, Scroll, Touch, Click}

// Source delivers interaction signals from the UI boundary
type Source interface {
	Subscribe(fn func(Signal)) (unsubscribe func())
}

// Tracker records the time of the last user activity
type Tracker struct {
	clock clockwork.Clock
	last  atomic.Int64 // unix nanos
}

// NewTracker creates a tracker whose last activity is now
func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{clock: clock}
	t.last.Store(clock.Now().UnixNano())
	return t
}

// OnActivity records activity at the current time. It never moves the
// timestamp backwards.
func (t *Tracker) OnActivity() {
	now := t.clock.Now().UnixNano()
	for {
		prev := t.last.Load()
		if now <= prev {
			return
		}
		if t.last.CompareAndSwap(prev, now) {
			return
		}
	}
}

// Reset forces the last activity to now, e.g. on login
func (t *Tracker) Reset() {
	t.last.Store(t.clock.Now().UnixNano())
}

// LastActivity returns the time of the last recorded activity
func (t *Tracker) LastActivity() time.Time {
	return time.Unix(0, t.last.Load())
}

// Since returns the time elapsed since the last activity
func (t *Tracker) Since() time.Duration {
	return t.clock.Now().Sub(t.LastActivity())
}

// Attach subscribes the tracker to a source. The returned func detaches it.
func (t *Tracker) Attach(src Source) (detach func()) {
	return src.Subscribe(func(Signal) { t.OnActivity() })
}

// Feed is an in-process Source that host code emits signals into
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Signal)
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]func(Signal))}
}

// Subscribe registers fn for every emitted signal
func (f *Feed) Subscribe(fn func(Signal)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Emit delivers a signal to all subscribers
func (f *Feed) Emit(s Signal) {
	f.mu.RLock()
	handlers := make([]func(Signal), 0, len(f.subs))
	for _, fn := range f.subs {
		handlers = append(handlers, fn)
	}
	f.mu.RUnlock()

	for _, fn := range handlers {
		fn(s)
	}
}
