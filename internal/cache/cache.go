package cache

import (
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type Cache[K comparable, V any] struct {
	cache       *gocache.Cache
	mu          sync.RWMutex
	keyToString func(K) string
}

type CacheConfig struct {
	TTL time.Duration
}

func NewCache[K comparable, V any](config CacheConfig, keyToString func(K) string) *Cache[K, V] {
	if config.TTL == 0 {
		config.TTL = 1 * time.Hour
	}

	slog.Debug("Cache initialized", "ttl", config.TTL)

	return &Cache[K, V]{
		cache:       gocache.New(config.TTL, config.TTL/2),
		keyToString: keyToString,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, found := c.cache.Get(c.keyToString(key))
	if !found {
		var zero V
		return zero, false
	}

	if typedValue, ok := value.(V); ok {
		return typedValue, true
	}

	var zero V
	return zero, false
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Set(c.keyToString(key), value, gocache.DefaultExpiration)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.ItemCount()
}

// SeenKeys remembers dedup keys that already reached the staging store, so
// overlapping fetch windows skip the database round trip for them.
type SeenKeys struct {
	cache *Cache[string, struct{}]
}

func NewSeenKeys(ttl time.Duration) *SeenKeys {
	return &SeenKeys{
		cache: NewCache[string, struct{}](CacheConfig{TTL: ttl}, func(k string) string { return k }),
	}
}

func (s *SeenKeys) Seen(key string) bool {
	if s == nil || key == "" {
		return false
	}
	_, ok := s.cache.Get(key)
	return ok
}

func (s *SeenKeys) Mark(key string) {
	if s == nil || key == "" {
		return
	}
	s.cache.Set(key, struct{}{})
}

func (s *SeenKeys) Len() int {
	if s == nil {
		return 0
	}
	return s.cache.Len()
}
