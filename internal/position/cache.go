package position

import (
	"context"
	"sync"
	"time"

	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/events"
)

// Aggregator produces a position summary for one account.
type Aggregator interface {
	Aggregate(ctx context.Context, account string) (domain.PositionSummary, error)
}

type cacheEntry struct {
	summary   domain.PositionSummary
	expiresAt time.Time
}

// Cache serves recent summaries and invalidates them on bus events. A
// per-account generation counter discards results of passes that were
// superseded by an invalidation while in flight.
type Cache struct {
	inner Aggregator
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	gens    map[string]uint64
	epoch   uint64

	unsubscribe func()
}

// NewCache wraps an aggregator with a TTL cache. When bus is non-nil the
// cache subscribes to position-changing events and drops all entries on each.
func NewCache(inner Aggregator, ttl time.Duration, bus *events.Bus) *Cache {
	c := &Cache{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		gens:    make(map[string]uint64),
	}

	if bus != nil {
		ch, cancel := bus.Subscribe(
			events.VaultPositionsChanged,
			events.PoolPositionsChanged,
			events.ActivityChanged,
		)
		c.unsubscribe = cancel
		go func() {
			for range ch {
				c.InvalidateAll()
			}
		}()
	}

	return c
}

// Aggregate serves a fresh cached summary when available, otherwise runs the
// inner aggregator. A result computed before an invalidation arrived is
// returned to its caller but never cached.
func (c *Cache) Aggregate(ctx context.Context, account string) (domain.PositionSummary, error) {
	c.mu.RLock()
	entry, ok := c.entries[account]
	gen := c.gens[account]
	epoch := c.epoch
	c.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.summary, nil
	}

	summary, err := c.inner.Aggregate(ctx, account)
	if err != nil {
		return domain.PositionSummary{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Superseded pass: an invalidation bumped the generation mid-flight.
	if c.gens[account] != gen || c.epoch != epoch {
		return summary, nil
	}
	// Last-writer-wins by pass timestamp, never backwards.
	if existing, ok := c.entries[account]; ok && existing.summary.GeneratedAt.After(summary.GeneratedAt) {
		return summary, nil
	}
	c.entries[account] = cacheEntry{summary: summary, expiresAt: time.Now().Add(c.ttl)}
	return summary, nil
}

// InvalidateAll drops every cached summary and supersedes in-flight passes.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.epoch++
}

// Invalidate drops one account's cached summary.
func (c *Cache) Invalidate(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, account)
	c.gens[account]++
}

// Close detaches the cache from the event bus.
func (c *Cache) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
