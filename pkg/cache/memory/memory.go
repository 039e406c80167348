package memory

import (
	"context"
	"sync"
	"time"

	"bank-analytics/pkg/cache"
)

// MemoryCache is an in-process cache.Layer with TTL expiry and LRU eviction.
type MemoryCache struct {
	data map[string]*entry
	mu   sync.Mutex

	config MemoryCacheConfig

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
}

type entry struct {
	value      []byte
	expiresAt  time.Time
	accessedAt time.Time
}

// MemoryCacheConfig holds configuration for the memory cache
type MemoryCacheConfig struct {
	cache.LayerConfig

	// MaxSize is the maximum number of entries (0 = unlimited)
	MaxSize int

	// CleanupInterval is how often to check for expired entries
	CleanupInterval time.Duration
}

// DefaultMemoryCacheConfig returns the configuration used for the first
// tier of the report cache.
func DefaultMemoryCacheConfig() MemoryCacheConfig {
	return MemoryCacheConfig{
		LayerConfig: cache.LayerConfig{
			Name:       "memory",
			DefaultTTL: 10 * time.Minute,
			MaxTTL:     time.Hour,
		},
		MaxSize:         256,
		CleanupInterval: time.Minute,
	}
}

// NewMemoryCache creates a new in-memory cache with the given configuration.
// It starts a background goroutine for TTL cleanup; call Close to stop it.
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = time.Hour
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	c := &MemoryCache{
		data:          make(map[string]*entry),
		config:        config,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	c.wg.Add(1)
	go c.cleanup()

	return c
}

// Get returns a copy of the payload stored under key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	now := time.Now()
	if now.After(e.expiresAt) {
		delete(c.data, key)
		return nil, cache.ErrKeyNotFound
	}
	e.accessedAt = now

	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. When the cache is full the least recently
// used entry is evicted.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	now := time.Now()
	ttl = c.config.EffectiveTTL(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.config.MaxSize > 0 && len(c.data) >= c.config.MaxSize {
		c.evictLRU()
	}

	c.data[key] = &entry{
		value:      append([]byte(nil), value...),
		expiresAt:  now.Add(ttl),
		accessedAt: now,
	}
	return nil
}

// evictLRU must be called with mu held.
func (c *MemoryCache) evictLRU() {
	var lruKey string
	var lruTime time.Time
	for k, e := range c.data {
		if lruKey == "" || e.accessedAt.Before(lruTime) {
			lruKey = k
			lruTime = e.accessedAt
		}
	}
	if lruKey != "" {
		delete(c.data, lruKey)
	}
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()

	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]*entry)
	c.mu.Unlock()
	return nil
}

// Name returns the cache layer name.
func (c *MemoryCache) Name() string {
	return c.config.Name
}

// Close stops the background cleanup goroutine and clears all data.
func (c *MemoryCache) Close() error {
	c.cleanupTicker.Stop()
	close(c.stopCleanup)
	c.wg.Wait()

	c.mu.Lock()
	c.data = make(map[string]*entry)
	c.mu.Unlock()

	return nil
}

func (c *MemoryCache) cleanup() {
	defer c.wg.Done()

	for {
		select {
		case <-c.cleanupTicker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, key)
		}
	}
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() MemoryCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return MemoryCacheStats{
		Size:    len(c.data),
		MaxSize: c.config.MaxSize,
	}
}

// MemoryCacheStats holds cache statistics.
type MemoryCacheStats struct {
	Size    int `json:"size"`     // Current number of entries
	MaxSize int `json:"max_size"` // Maximum allowed entries (0 = unlimited)
}
