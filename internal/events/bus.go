// Package events is a typed in-process publish/subscribe bus. Delivery is
// best-effort to currently-subscribed listeners; slow subscribers drop
// events rather than block publishers.
package events

import (
	"sync"
	"time"
)

// Kind names one event category.
type Kind string

const (
	ActivityChanged       Kind = "activity.changed"
	VaultPositionsChanged Kind = "positions.vault.changed"
	PoolPositionsChanged  Kind = "positions.pool.changed"
	RatesUpdated          Kind = "rates.updated"
)

// PositionsChangedFor maps an instrument class to its invalidation event.
func PositionsChangedFor(kind string) Kind {
	if kind == "stakingPool" {
		return PoolPositionsChanged
	}
	return VaultPositionsChanged
}

// Event is one published notification. Events carry no payload beyond their
// kind; observers re-read state through the owning service.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

type subscriber struct {
	kinds map[Kind]bool // empty = all kinds
	ch    chan Event
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers interest in the given kinds (all kinds when none are
// given). The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	sub := &subscriber{
		kinds: make(map[Kind]bool, len(kinds)),
		ch:    make(chan Event, 16),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Bus) Publish(kind Kind) {
	ev := Event{Kind: kind, At: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.kinds) > 0 && !sub.kinds[kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
