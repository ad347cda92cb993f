package proximity

import (
	"testing"

	"transit-proximity/internal/gtfs"
)

func TestQuantizeSameCell(t *testing.T) {
	a := Quantize(gtfs.Position{Lat: 39.40012, Lon: -0.40049})
	b := Quantize(gtfs.Position{Lat: 39.40038, Lon: -0.40021})
	if a != b {
		t.Errorf("positions within the same ~100m cell must share a key: %v vs %v", a, b)
	}
	c := Quantize(gtfs.Position{Lat: 39.41, Lon: -0.40})
	if a == c {
		t.Error("positions in different cells must not collide")
	}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := NewCache(4)
	pos := gtfs.Position{Lat: 39.4001, Lon: -0.4001}

	if _, _, ok := c.Get(pos); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(pos, Result{State: StateData, Stations: []FilteredStation{{Stop: gtfs.Stop{ID: 1}}}})

	got, age, ok := c.Get(pos)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got.State != StateData || len(got.Stations) != 1 {
		t.Errorf("cached result mangled: %+v", got)
	}
	if age < 0 {
		t.Errorf("age must be non-negative, got %v", age)
	}

	// Nearby position in the same cell hits too.
	if _, _, ok := c.Get(gtfs.Position{Lat: 39.40014, Lon: -0.40007}); !ok {
		t.Error("same-cell position should hit")
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	c := NewCache(2)
	p1 := gtfs.Position{Lat: 39.400, Lon: -0.400}
	p2 := gtfs.Position{Lat: 39.410, Lon: -0.400}
	p3 := gtfs.Position{Lat: 39.420, Lon: -0.400}

	c.Put(p1, Result{State: StateEmpty})
	c.Put(p2, Result{State: StateEmpty})
	c.Get(p1) // p1 becomes most recently used
	c.Put(p3, Result{State: StateEmpty})

	if _, _, ok := c.Get(p2); ok {
		t.Error("p2 was least recently used and should have been evicted")
	}
	if _, _, ok := c.Get(p1); !ok {
		t.Error("p1 was touched and must survive")
	}
	if _, _, ok := c.Get(p3); !ok {
		t.Error("p3 was just added and must be present")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(2)
	p := gtfs.Position{Lat: 39.4, Lon: -0.4}
	c.Put(p, Result{State: StateEmpty})
	c.Clear()
	if _, _, ok := c.Get(p); ok {
		t.Error("expected miss after Clear")
	}
}

func TestShouldRefilter(t *testing.T) {
	last := gtfs.Position{Lat: 39.4000, Lon: -0.4000}
	jitter := gtfs.Position{Lat: 39.40005, Lon: -0.40005} // a few meters
	moved := gtfs.Position{Lat: 39.4010, Lon: -0.4000}    // ~110 m

	if ShouldRefilter(last, jitter, 50) {
		t.Error("GPS jitter below the threshold must not trigger a refilter")
	}
	if !ShouldRefilter(last, moved, 50) {
		t.Error("movement beyond the threshold must trigger a refilter")
	}
}

func TestFormatDistance(t *testing.T) {
	if got := FormatDistance(850); got != "850 m" {
		t.Errorf("expected 850 m, got %q", got)
	}
	if got := FormatDistance(1234); got != "1.2 km" {
		t.Errorf("expected 1.2 km, got %q", got)
	}
}
