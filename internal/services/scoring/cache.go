package scoring

import (
	"sync"
	"time"

	"peertrust/internal/domain"
)

// Cache memoizes (score, trust level) per peer for a bounded TTL. Entries
// are invalidated synchronously when a confirmed verdict lands. Each peer
// carries an invalidation generation: Put takes the generation observed
// before the score was computed and refuses to install when it has moved,
// so a result computed against a log that has since grown can never
// overwrite the fresher entry.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]domain.CachedScore
	gens    map[string]uint64
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]domain.CachedScore),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached entry for peerID if it is still valid at now.
func (c *Cache) Get(peerID string, now time.Time) (domain.CachedScore, bool) {
	c.mu.RLock()
	entry, ok := c.entries[peerID]
	c.mu.RUnlock()
	if !ok || now.Sub(entry.CachedAt) >= c.ttl {
		return domain.CachedScore{}, false
	}
	return entry, true
}

// Generation returns the peer's current invalidation generation. Read it
// before computing a score and hand it back to Put.
func (c *Cache) Generation(peerID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[peerID]
}

// Put installs entry unless the peer was invalidated after gen was read.
// It reports whether the entry was installed.
func (c *Cache) Put(peerID string, gen uint64, entry domain.CachedScore) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[peerID] != gen {
		return false
	}
	c.entries[peerID] = entry
	return true
}

// Invalidate drops the peer's entry and advances its generation, fencing
// off any in-flight Put computed from the old log. It returns the new
// generation for the caller's own Put.
func (c *Cache) Invalidate(peerID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[peerID]++
	delete(c.entries, peerID)
	return c.gens[peerID]
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
