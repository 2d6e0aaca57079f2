// Package dedupe suppresses repeat initial generations for the same item.
package dedupe

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hpungsan/memomind/internal/document"
)

type state int

const (
	statePending state = iota + 1
	stateComplete
)

// Key identifies one initial generation.
type Key struct {
	Kind   document.Kind
	ItemID string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ItemID
}

// Cache records in-flight and recently completed generations.
type Cache struct {
	entries *cache.Cache
	ttl     time.Duration

	mu     sync.Mutex
	guards map[document.Kind]*Guard
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{entries: cache.New(ttl, 2*ttl), ttl: ttl, guards: map[document.Kind]*Guard{}}
}

// HasPending reports whether a generation for key is in flight or completed
// within the TTL.
func (c *Cache) HasPending(key Key) bool {
	_, found := c.entries.Get(key.String())
	return found
}

// MarkPending records key as in flight. Returns false when key was already
// pending or complete; the caller must not issue the request.
func (c *Cache) MarkPending(key Key) bool {
	return c.entries.Add(key.String(), statePending, cache.DefaultExpiration) == nil
}

// MarkComplete records that the generation for key finished.
func (c *Cache) MarkComplete(key Key) {
	c.entries.Set(key.String(), stateComplete, cache.DefaultExpiration)
}

// Complete reports whether key finished within the TTL.
func (c *Cache) Complete(key Key) bool {
	v, found := c.entries.Get(key.String())
	return found && v.(state) == stateComplete
}

// Forget drops key so the next mount triggers again.
func (c *Cache) Forget(key Key) {
	c.entries.Delete(key.String())
}

// Guard is the per-page view of the cache for one content kind.
type Guard struct {
	cache *Cache
	kind  document.Kind

	mu      sync.Mutex
	current string
}

// Guard returns the guard for kind. Every caller for the same kind shares
// one guard, so the current item survives across page instances.
func (c *Cache) Guard(kind document.Kind) *Guard {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[kind]
	if !ok {
		g = &Guard{cache: c, kind: kind}
		c.guards[kind] = g
	}
	return g
}

// Mount returns true exactly once per distinct item id. Switching to a new id
// forgets the previous one, so navigating back triggers again.
func (g *Guard) Mount(itemID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if itemID != g.current {
		if g.current != "" {
			g.cache.Forget(Key{Kind: g.kind, ItemID: g.current})
		}
		g.current = itemID
	}
	return g.cache.MarkPending(Key{Kind: g.kind, ItemID: itemID})
}

// Done marks the current item's generation complete.
func (g *Guard) Done(itemID string) {
	g.cache.MarkComplete(Key{Kind: g.kind, ItemID: itemID})
}

// Reset forgets the current item so the next Mount triggers again.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != "" {
		g.cache.Forget(Key{Kind: g.kind, ItemID: g.current})
		g.current = ""
	}
}
