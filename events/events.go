// Package events carries cart change notifications to listeners.
//
// A change reaches listeners on one of two channels. Local events are emitted by
// the cart service that made the write and are seen only by listeners on the same
// bus. External events come from the storage mechanism when some other instance
// wrote the key; the writer itself never sees them.
package events

import (
	"sync"
	"time"
)

const (
	CartUpdateEvent = "cartUpdated"
	StorageEvent    = "storage"
)

type Channel int

const (
	Local Channel = iota
	External
)

func (c Channel) String() string {
	switch c {
	case Local:
		return "local"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

type Event struct {
	Name     string
	Channel  Channel
	Key      string
	NewValue string
	Origin   string
	At       time.Time
}

type Listener func(Event)

type Notifier interface {
	Subscribe(ch Channel, l Listener) (unsubscribe func())
	Notify(ev Event)
}

// Bus is an in-process Notifier. Listeners run synchronously on the notifying goroutine.
type Bus struct {
	mu        sync.RWMutex
	next      int
	listeners map[Channel]map[int]Listener
}

func NewBus() *Bus {
	return &Bus{
		listeners: map[Channel]map[int]Listener{
			Local:    {},
			External: {},
		},
	}
}

func (b *Bus) Subscribe(ch Channel, l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners[ch] == nil {
		b.listeners[ch] = map[int]Listener{}
	}
	id := b.next
	b.next++
	b.listeners[ch][id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners[ch], id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Notify(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	ls := make([]Listener, 0, len(b.listeners[ev.Channel]))
	for _, l := range b.listeners[ev.Channel] {
		ls = append(ls, l)
	}
	b.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Subscribe(Channel, Listener) func() { return func() {} }
func (Discard) Notify(Event) {}
