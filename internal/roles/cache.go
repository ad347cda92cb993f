package roles

import (
	"errors"
	"sync"
	"time"

	"transit-proximity/internal/gtfs"
)

// DefaultTTL is the staleness horizon for aggregated role maps.
const DefaultTTL = 24 * time.Hour

var errEmptyReferenceData = errors.New("roles: empty trip/stop_time reference data")

type cacheEntry struct {
	roles      map[int]Role
	computedAt time.Time
}

// Cache holds aggregated role maps per route with a staleness horizon.
// Recomputation follows an invalidate-then-recompute policy: a recompute
// replaces the entry wholesale, and a recompute from empty reference data
// stores an empty map and records a non-fatal error instead of failing.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int]cacheEntry
	lastErr error
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[int]cacheEntry),
		now:     time.Now,
	}
}

// RolesForRoute returns the cached role map for a route, recomputing it
// when missing or older than the TTL. The returned map is the caller's
// copy; mutating it does not touch the cached entry.
func (c *Cache) RolesForRoute(routeID int, trips []gtfs.Trip, stopTimes []gtfs.StopTime) map[int]Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[routeID]; ok && c.now().Sub(e.computedAt) < c.ttl {
		return copyRoles(e.roles)
	}
	return copyRoles(c.recomputeLocked(routeID, trips, stopTimes))
}

func copyRoles(m map[int]Role) map[int]Role {
	out := make(map[int]Role, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Invalidate clears all cached role maps. The next query recomputes
// synchronously.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]cacheEntry)
	c.lastErr = nil
}

// Err returns the error recorded by the most recent recompute, if any.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Cache) recomputeLocked(routeID int, trips []gtfs.Trip, stopTimes []gtfs.StopTime) map[int]Role {
	if len(trips) == 0 || len(stopTimes) == 0 {
		c.lastErr = errEmptyReferenceData
		empty := map[int]Role{}
		c.entries[routeID] = cacheEntry{roles: empty, computedAt: c.now()}
		return empty
	}
	c.lastErr = nil
	roles := AggregateRoute(routeID, trips, stopTimes)
	c.entries[routeID] = cacheEntry{roles: roles, computedAt: c.now()}
	return roles
}
