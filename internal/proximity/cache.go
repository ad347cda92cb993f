package proximity

import (
	"fmt"
	"math"
	"sync"
	"time"

	"transit-proximity/internal/geo"
	"transit-proximity/internal/gtfs"
)

// quantizeScale buckets positions into ~100 m cells (3 decimal degrees).
const quantizeScale = 1000.0

// CellKey is a quantized coordinate pair. Integer scaling keeps string
// formatting out of the hot path.
type CellKey struct {
	LatE3 int
	LonE3 int
}

func (k CellKey) String() string { return fmt.Sprintf("%d_%d", k.LatE3, k.LonE3) }

// Quantize maps a position to its cache cell.
func Quantize(p gtfs.Position) CellKey {
	return CellKey{
		LatE3: int(math.Round(p.Lat * quantizeScale)),
		LonE3: int(math.Round(p.Lon * quantizeScale)),
	}
}

// ShouldRefilter reports whether the user has moved far enough from the
// last filtered position to justify recomputation. Small moves are GPS
// jitter and keep the previous result.
func ShouldRefilter(last, current gtfs.Position, thresholdMeters float64) bool {
	return geo.Distance(last.Lat, last.Lon, current.Lat, current.Lon) > thresholdMeters
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// Cache is a small LRU of filter results keyed by quantized position.
// A hit returns the stored result immediately; the caller is expected to
// refresh it in the background, so stale station lists are shown and then
// replaced rather than blocking on recomputation.
type Cache struct {
	mu      sync.Mutex
	cap     int
	entries map[CellKey]cacheEntry
	order   []CellKey // oldest first
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 8
	}
	return &Cache{
		cap:     capacity,
		entries: make(map[CellKey]cacheEntry, capacity),
	}
}

// Get returns the cached result for the position's cell and its age.
func (c *Cache) Get(p gtfs.Position) (Result, time.Duration, bool) {
	key := Quantize(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, 0, false
	}
	c.touchLocked(key)
	return e.result, time.Since(e.storedAt), true
}

// Put stores a result for the position's cell, evicting the least recently
// used cell when full.
func (c *Cache) Put(p gtfs.Position, r Result) {
	key := Quantize(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = cacheEntry{result: r, storedAt: time.Now()}
	c.touchLocked(key)
}

// Clear drops every cached cell. Used when the reference snapshot changes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CellKey]cacheEntry, c.cap)
	c.order = c.order[:0]
}

func (c *Cache) touchLocked(key CellKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}
