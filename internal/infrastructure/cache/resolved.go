package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/ports"
)

const keyPrefix = "resolved"

// ResolvedCache is an in-memory cache of finished resolutions keyed by original URL.
type ResolvedCache struct {
	cache *gocache.Cache
}

var _ ports.ResolvedCache = (*ResolvedCache)(nil)

// NewResolvedCache creates the cache with a default TTL and purge interval.
func NewResolvedCache(defaultExpiration, cleanupInterval time.Duration) *ResolvedCache {
	return &ResolvedCache{cache: gocache.New(defaultExpiration, cleanupInterval)}
}

// Put stores res; a zero ttl uses the cache default.
func (c *ResolvedCache) Put(res domain.Resolution, ttl time.Duration) {
	if res.Original == "" || res.Resolved == "" {
		return
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key(res.Original), res, ttl)
}

// Get returns the cached resolution marked as a cache hit.
func (c *ResolvedCache) Get(original string) (domain.Resolution, bool) {
	val, found := c.cache.Get(key(original))
	if !found {
		return domain.Resolution{}, false
	}
	res, ok := val.(domain.Resolution)
	if !ok {
		return domain.Resolution{}, false
	}
	res.Cached = true
	res.Trail = append([]string(nil), res.Trail...)
	return res, true
}

func key(original string) string {
	return keyPrefix + ":" + strings.TrimSpace(original)
}
