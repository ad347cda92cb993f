package roles

import (
	"testing"
	"time"

	"transit-proximity/internal/gtfs"
)

func seq(tripID string, stopIDs ...int) []gtfs.StopTime {
	sts := make([]gtfs.StopTime, len(stopIDs))
	for i, id := range stopIDs {
		sts[i] = gtfs.StopTime{TripID: tripID, StopID: id, StopSequence: i}
	}
	return sts
}

func TestTripEndpoints(t *testing.T) {
	sts := seq("T1", 100, 101, 102)
	start, end := TripEndpoints("T1", sts)
	if start != 100 || end != 102 {
		t.Errorf("expected (100, 102), got (%d, %d)", start, end)
	}
}

func TestTripEndpointsNoStopTimes(t *testing.T) {
	start, end := TripEndpoints("missing", seq("T1", 100, 101))
	if start != 0 || end != 0 {
		t.Errorf("expected sentinel (0, 0), got (%d, %d)", start, end)
	}
}

func TestAggregateRouteTurnaround(t *testing.T) {
	// Two opposing trips on one route: both endpoints are turnarounds,
	// the middle stop is standard.
	trips := []gtfs.Trip{
		{TripID: "T1", RouteID: 7},
		{TripID: "T2", RouteID: 7},
	}
	sts := append(seq("T1", 100, 101, 102), seq("T2", 102, 101, 100)...)

	got := AggregateRoute(7, trips, sts)
	if got[100] != RoleTurnaround {
		t.Errorf("station 100: expected turnaround, got %s", got[100])
	}
	if got[102] != RoleTurnaround {
		t.Errorf("station 102: expected turnaround, got %s", got[102])
	}
	if got[101] != RoleStandard {
		t.Errorf("station 101: expected standard, got %s", got[101])
	}
}

func TestAggregateRouteStartEnd(t *testing.T) {
	trips := []gtfs.Trip{{TripID: "T1", RouteID: 3}}
	sts := seq("T1", 10, 11, 12)
	got := AggregateRoute(3, trips, sts)
	if got[10] != RoleStart {
		t.Errorf("station 10: expected start, got %s", got[10])
	}
	if got[12] != RoleEnd {
		t.Errorf("station 12: expected end, got %s", got[12])
	}
	if got[11] != RoleStandard {
		t.Errorf("station 11: expected standard, got %s", got[11])
	}
}

func TestAggregateRouteAbsentStations(t *testing.T) {
	trips := []gtfs.Trip{{TripID: "T1", RouteID: 3}}
	sts := append(seq("T1", 10, 11), seq("otherRoute", 99)...)
	got := AggregateRoute(3, trips, sts)
	if _, ok := got[99]; ok {
		t.Error("station 99 is not touched by route 3 and must be absent")
	}
	if len(got) != 2 {
		t.Errorf("expected 2 classified stations, got %d", len(got))
	}
}

func TestIsStationEndForTrip(t *testing.T) {
	sts := seq("T1", 100, 101, 102)
	if !IsStationEndForTrip(102, "T1", sts) {
		t.Error("102 is the terminus of T1")
	}
	if IsStationEndForTrip(101, "T1", sts) {
		t.Error("101 is not the terminus of T1")
	}
	if IsStationEndForTrip(102, "unknown", sts) {
		t.Error("unknown trip must report false, not an error")
	}
}

func TestCacheRecomputesWhenStale(t *testing.T) {
	c := NewCache(time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	trips := []gtfs.Trip{{TripID: "T1", RouteID: 1}}
	sts := seq("T1", 1, 2)
	first := c.RolesForRoute(1, trips, sts)
	if len(first) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(first))
	}

	// A fresh query within the TTL against changed data still serves the
	// cached map.
	stale := c.RolesForRoute(1, trips, seq("T1", 1, 2, 3))
	if len(stale) != 2 {
		t.Errorf("expected cached map within TTL, got %d roles", len(stale))
	}

	// Past the horizon the new data wins.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := c.RolesForRoute(1, trips, seq("T1", 1, 2, 3))
	if len(fresh) != 3 {
		t.Errorf("expected recompute after TTL, got %d roles", len(fresh))
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Hour)
	trips := []gtfs.Trip{{TripID: "T1", RouteID: 1}}
	c.RolesForRoute(1, trips, seq("T1", 1, 2))
	c.Invalidate()
	fresh := c.RolesForRoute(1, trips, seq("T1", 1, 2, 3))
	if len(fresh) != 3 {
		t.Errorf("expected recompute after invalidate, got %d roles", len(fresh))
	}
}

func TestCacheEmptyInputRecordsError(t *testing.T) {
	c := NewCache(time.Hour)
	got := c.RolesForRoute(1, nil, nil)
	if len(got) != 0 {
		t.Errorf("expected empty role map, got %d entries", len(got))
	}
	if c.Err() == nil {
		t.Error("expected recorded error after recompute from empty data")
	}

	// A later successful recompute clears the flag.
	c.Invalidate()
	c.RolesForRoute(1, []gtfs.Trip{{TripID: "T1", RouteID: 1}}, seq("T1", 1, 2))
	if c.Err() != nil {
		t.Errorf("expected error cleared, got %v", c.Err())
	}
}

func TestCacheReturnsDetachedMap(t *testing.T) {
	c := NewCache(time.Hour)
	trips := []gtfs.Trip{{TripID: "T1", RouteID: 10}}
	sts := seq("T1", 100, 101, 102)

	got := c.RolesForRoute(10, trips, sts)
	got[100] = RoleStandard
	got[999] = RoleEnd

	again := c.RolesForRoute(10, trips, sts)
	if again[100] != RoleStart {
		t.Errorf("mutating a returned map must not corrupt the cache, got %s", again[100])
	}
	if _, ok := again[999]; ok {
		t.Error("key added by a caller must not leak into the cached entry")
	}
}

func TestDropOffIndicator(t *testing.T) {
	sts := append(seq("T1", 100, 101, 102), seq("T2", 200, 102)...)

	if ShouldShowDropOffIndicator(nil, 102, sts) {
		t.Error("empty vehicle list must be false")
	}

	all := []gtfs.Vehicle{{ID: 1, TripID: "T1"}, {ID: 2, TripID: "T2"}}
	if !ShouldShowDropOffIndicator(all, 102, sts) {
		t.Error("all trips terminate at 102, expected true")
	}

	withUnknown := append(all, gtfs.Vehicle{ID: 3})
	if ShouldShowDropOffIndicator(withUnknown, 102, sts) {
		t.Error("a vehicle without a trip id forces false")
	}

	if ShouldShowDropOffIndicator(all, 101, sts) {
		t.Error("101 is not a terminus for T1/T2, expected false")
	}
}
