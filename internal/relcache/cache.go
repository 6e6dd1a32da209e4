// Package relcache keeps the persisted set of entity ids for which one
// relation was last confirmed "on". Absence means never toggled or toggled
// off; only membership is stored.
package relcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/artpar/kith/internal/kv"
)

// DefaultMaxEntries bounds the persisted list. Oldest confirmations are
// trimmed first.
const DefaultMaxEntries = 5000

// Cache is a write-through, bounded set of ids stored as an ordered JSON
// list under a single key.
type Cache struct {
	mu         sync.Mutex
	store      kv.Store
	key        string
	maxEntries int
	logger     *zap.Logger

	ids   []string
	index map[string]struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries sets the trim bound. Values below 1 disable trimming.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Key returns the store key for a namespace scoped to an origin.
func Key(origin, namespace string) string {
	return origin + "|" + namespace
}

// New loads the cache stored under Key(origin, namespace). Missing or
// malformed data yields an empty cache.
func New(store kv.Store, origin, namespace string, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		key:        Key(origin, namespace),
		maxEntries: DefaultMaxEntries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.load()
	return c
}

func (c *Cache) load() {
	c.ids = nil
	c.index = make(map[string]struct{})

	raw, err := c.store.Get(context.Background(), c.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("relation cache unreadable, starting empty",
				zap.String("key", c.key), zap.Error(err))
		}
		return
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		c.logger.Debug("relation cache malformed, starting empty",
			zap.String("key", c.key), zap.Error(err))
		return
	}

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := c.index[id]; dup {
			continue
		}
		c.index[id] = struct{}{}
		c.ids = append(c.ids, id)
	}
	c.trim()
}

// Reload re-reads the persisted list, discarding the in-memory view.
func (c *Cache) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
}

// Has reports whether id is in the set.
func (c *Cache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Add inserts id, or moves it to the most recent position, and persists.
func (c *Cache) Add(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; ok {
		c.removeLocked(id)
	}
	c.index[id] = struct{}{}
	c.ids = append(c.ids, id)
	c.trim()
	return c.persist()
}

// Remove deletes id and persists. Removing a missing id still persists so
// that a corrupted entry is overwritten with a clean list.
func (c *Cache) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(id)
	return c.persist()
}

// Set adds or removes id depending on on.
func (c *Cache) Set(id string, on bool) error {
	if on {
		return c.Add(id)
	}
	return c.Remove(id)
}

// IDs returns the members, oldest confirmation first.
func (c *Cache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len returns the number of members.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Clear removes every member and the persisted key.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ids = nil
	c.index = make(map[string]struct{})
	if err := c.store.Delete(context.Background(), c.key); err != nil {
		return fmt.Errorf("clear relation cache: %w", err)
	}
	return nil
}

func (c *Cache) removeLocked(id string) {
	if _, ok := c.index[id]; !ok {
		return
	}
	delete(c.index, id)
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
}

func (c *Cache) trim() {
	if c.maxEntries < 1 || len(c.ids) <= c.maxEntries {
		return
	}
	drop := len(c.ids) - c.maxEntries
	for _, id := range c.ids[:drop] {
		delete(c.index, id)
	}
	c.ids = append([]string(nil), c.ids[drop:]...)
}

func (c *Cache) persist() error {
	ids := c.ids
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode relation cache: %w", err)
	}
	if err := c.store.Set(context.Background(), c.key, string(data)); err != nil {
		return fmt.Errorf("persist relation cache: %w", err)
	}
	return nil
}
