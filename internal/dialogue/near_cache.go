package dialogue

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// NearCache is an in-process cache of decoded state records sitting in front
// of redis. It saves a network hop and a decode on the read that starts every
// turn. Entries expire after a short TTL so that writes from other instances
// become visible quickly.
type NearCache struct {
	cache   *ristretto.Cache[string, State]
	ttl     time.Duration
	logger  *zap.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	maxSize int64
}

// NewNearCache creates a cache holding up to maxEntries records for ttl.
func NewNearCache(maxEntries int64, ttl time.Duration, logger *zap.Logger) (*NearCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, State]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &NearCache{
		cache:   cache,
		ttl:     ttl,
		logger:  logger.Named("nearcache"),
		maxSize: maxEntries,
	}, nil
}

// Get returns the cached record for userID.
func (c *NearCache) Get(userID string) (State, bool) {
	st, found := c.cache.Get(userID)
	if found {
		c.hits.Add(1)
		return st, true
	}
	c.misses.Add(1)
	return State{}, false
}

// Set caches st for userID. It blocks until the write is visible so that a
// read following a write never observes the previous record.
func (c *NearCache) Set(userID string, st State) {
	c.cache.Del(userID)
	c.cache.SetWithTTL(userID, st, 1, c.ttl)
	c.cache.Wait()
}

// Delete drops the record for userID.
func (c *NearCache) Delete(userID string) {
	c.cache.Del(userID)
	c.cache.Wait()
}

// Close releases the cache goroutines.
func (c *NearCache) Close() {
	c.cache.Close()
}

// Stats returns cache statistics.
func (c *NearCache) Stats() map[string]interface{} {
	hits, misses := c.hits.Load(), c.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return map[string]interface{}{
		"max_entries": c.maxSize,
		"hits":        hits,
		"misses":      misses,
		"hit_rate":    hitRate,
		"ttl_seconds": c.ttl.Seconds(),
	}
}
