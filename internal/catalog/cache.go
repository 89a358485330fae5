package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/couplemovie/backend/internal/logging"
)

// ErrCacheMiss is returned by Cache implementations when the key is absent or expired.
var ErrCacheMiss = errors.New("catalog cache miss")

// Cache stores resolved metadata by movie reference.
type Cache interface {
	Get(ctx context.Context, movieRef string) (Metadata, error)
	Set(ctx context.Context, movieRef string, metadata Metadata, ttl time.Duration) error
}

// CachingProvider wraps another Provider with a TTL cache. Cache failures are
// logged and treated as misses so a flaky cache never hides the catalog.
type CachingProvider struct {
	base  Provider
	cache Cache
	ttl   time.Duration
}

// NewCachingProvider returns a Provider that caches lookups for the provided TTL.
// A nil cache selects an in-process MemoryCache.
func NewCachingProvider(base Provider, cache Cache, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &CachingProvider{base: base, cache: cache, ttl: ttl}
}

// Lookup returns cached metadata when available, otherwise it delegates to the
// underlying provider and stores the result.
func (c *CachingProvider) Lookup(ctx context.Context, movieRef string) (Metadata, error) {
	if c == nil || c.base == nil {
		return Metadata{}, ErrProviderUnavailable
	}

	logger := logging.FromContext(ctx)

	metadata, err := c.cache.Get(ctx, movieRef)
	switch {
	case err == nil:
		return metadata, nil
	case !errors.Is(err, ErrCacheMiss):
		logger.Warn("catalog cache read failed", "movieRef", movieRef, "error", err)
	}

	metadata, err = c.base.Lookup(ctx, movieRef)
	if err != nil {
		return Metadata{}, err
	}

	if err := c.cache.Set(ctx, movieRef, metadata, c.ttl); err != nil {
		logger.Warn("catalog cache write failed", "movieRef", movieRef, "error", err)
	}

	return metadata, nil
}

type cacheEntry struct {
	metadata Metadata
	expires  time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
	now   func() time.Time
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]cacheEntry), now: time.Now}
}

// Get returns the cached metadata unless it has expired.
func (m *MemoryCache) Get(_ context.Context, movieRef string) (Metadata, error) {
	m.mu.RLock()
	entry, ok := m.items[movieRef]
	m.mu.RUnlock()
	if !ok || !m.now().Before(entry.expires) {
		return Metadata{}, ErrCacheMiss
	}
	return entry.metadata, nil
}

// Set stores metadata until ttl elapses.
func (m *MemoryCache) Set(_ context.Context, movieRef string, metadata Metadata, ttl time.Duration) error {
	m.mu.Lock()
	m.items[movieRef] = cacheEntry{metadata: metadata, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}
