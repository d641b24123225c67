package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// View kinds inside a cache key: [table, kind, ...].
const (
	viewDetail    = "detail"
	viewList      = "list"
	viewAggregate = "aggregate"
)

// Key identifies one cached read. Build keys with DetailKey, ListKey or AggregateKey.
type Key []string

func DetailKey(table string, id uuid.UUID) Key {
	return Key{table, viewDetail, id.String()}
}

func ListKey(table string, params ...string) Key {
	return append(Key{table, viewList}, params...)
}

func AggregateKey(table string, params ...string) Key {
	return append(Key{table, viewAggregate}, params...)
}

func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

type cacheEntry struct {
	key       Key
	value     interface{}
	expiresAt time.Time
}

// ViewCache holds read results keyed by the query that produced them. Values
// are shared between readers and must not be mutated.
type ViewCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewViewCache(ttl time.Duration) *ViewCache {
	return &ViewCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ViewCache) Get(key Key) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key.String())
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *ViewCache) Set(key Key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = cacheEntry{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
}

// InvalidateEntity drops the detail view of id and every list or aggregate
// view of table. It returns how many entries were removed.
func (c *ViewCache) InvalidateEntity(table string, id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if len(e.key) < 2 || e.key[0] != table {
			continue
		}
		if e.key[1] == viewDetail && (len(e.key) < 3 || e.key[2] != id.String()) {
			continue
		}
		delete(c.entries, k)
		removed++
	}
	return removed
}

// InvalidateTable drops every view of table.
func (c *ViewCache) InvalidateTable(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if len(e.key) > 0 && e.key[0] == table {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *ViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
