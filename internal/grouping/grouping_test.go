package grouping

import (
	"testing"

	"transit-proximity/internal/arrival"
	"transit-proximity/internal/gtfs"
	"transit-proximity/internal/proximity"
)

func sv(id, routeID int, status arrival.Status, minutes int) proximity.StationVehicle {
	return proximity.StationVehicle{
		Vehicle: gtfs.Vehicle{ID: id, RouteID: routeID},
		Route:   gtfs.Route{ID: routeID},
		Arrival: arrival.ArrivalTime{Status: status, EstimatedMinutes: minutes},
	}
}

func TestOffRouteDroppedFirst(t *testing.T) {
	in := []proximity.StationVehicle{
		sv(1, 10, arrival.StatusAtStop, 0),
		sv(2, 20, arrival.StatusOffRoute, arrival.MinutesOffRoute),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 5, IncludeOffRoute: false, RouteCount: 2})
	if len(got.Displayed) != 1 || got.Displayed[0].Vehicle.ID != 1 {
		t.Errorf("off-route vehicle must be dropped, got %d displayed", len(got.Displayed))
	}
	if len(got.Hidden) != 0 {
		t.Errorf("dropped off-route vehicles are not hidden entries, got %d", len(got.Hidden))
	}

	kept := GroupVehiclesForDisplay(in, Options{MaxVehicles: 5, IncludeOffRoute: true, RouteCount: 2})
	if len(kept.Displayed) != 2 {
		t.Errorf("IncludeOffRoute must keep the off-route vehicle, got %d", len(kept.Displayed))
	}
}

func TestSingleRouteNeverGroups(t *testing.T) {
	in := []proximity.StationVehicle{
		sv(1, 10, arrival.StatusInMinutes, 5),
		sv(2, 10, arrival.StatusInMinutes, 7),
		sv(3, 10, arrival.StatusInMinutes, 9),
		sv(4, 10, arrival.StatusDeparted, arrival.MinutesDeparted),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 2, IncludeOffRoute: true, RouteCount: 1})
	if got.GroupingApplied {
		t.Error("single-route stations must not group")
	}
	if len(got.Displayed) != 4 {
		t.Errorf("single-route stations display everything, got %d", len(got.Displayed))
	}
}

func TestUnderCapDisplaysEverything(t *testing.T) {
	in := []proximity.StationVehicle{
		sv(1, 10, arrival.StatusInMinutes, 5),
		sv(2, 20, arrival.StatusInMinutes, 7),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 3, IncludeOffRoute: true, RouteCount: 2})
	if got.GroupingApplied {
		t.Error("under the cap no grouping applies")
	}
	if len(got.Displayed) != 2 || len(got.Hidden) != 0 {
		t.Errorf("expected 2 displayed / 0 hidden, got %d / %d", len(got.Displayed), len(got.Hidden))
	}
}

func TestGroupRepresentativeSelection(t *testing.T) {
	// Two vehicles share (route 10, in_minutes); the earlier one wins and
	// the loser is hidden.
	in := []proximity.StationVehicle{
		sv(1, 10, arrival.StatusInMinutes, 9),
		sv(2, 10, arrival.StatusInMinutes, 4),
		sv(3, 20, arrival.StatusInMinutes, 6),
		sv(4, 30, arrival.StatusInMinutes, 8),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 3, IncludeOffRoute: true, RouteCount: 3})
	if !got.GroupingApplied {
		t.Fatal("expected grouping")
	}
	if len(got.Displayed) != 3 {
		t.Fatalf("expected 3 displayed, got %d", len(got.Displayed))
	}
	if got.Displayed[0].Vehicle.ID != 2 {
		t.Errorf("route 10 representative must be the 4-minute vehicle, got id %d", got.Displayed[0].Vehicle.ID)
	}
	if len(got.Hidden) != 1 || got.Hidden[0].Vehicle.ID != 1 {
		t.Errorf("group loser must be hidden, got %+v", got.Hidden)
	}
}

func TestGroupStableTieBreak(t *testing.T) {
	in := []proximity.StationVehicle{
		sv(1, 10, arrival.StatusInMinutes, 5),
		sv(2, 10, arrival.StatusInMinutes, 5), // tie: first seen wins
		sv(3, 20, arrival.StatusAtStop, 0),
		sv(4, 30, arrival.StatusAtStop, 0),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 3, IncludeOffRoute: true, RouteCount: 3})
	if !got.GroupingApplied {
		t.Fatal("expected grouping")
	}
	for _, d := range got.Displayed {
		if d.Vehicle.ID == 2 {
			t.Error("tie must be broken by input order; vehicle 1 wins")
		}
	}
}

func TestGroupingScenarioEightRoutes(t *testing.T) {
	in := []proximity.StationVehicle{
		sv(1, 1, arrival.StatusAtStop, 0),
		sv(2, 2, arrival.StatusAtStop, 0),
		sv(3, 3, arrival.StatusArrivingSoon, 1),
		sv(4, 4, arrival.StatusArrivingSoon, 1),
		sv(5, 5, arrival.StatusInMinutes, 5),
		sv(6, 6, arrival.StatusInMinutes, 7),
		sv(7, 7, arrival.StatusJustLeft, arrival.MinutesJustLeft),
		sv(8, 8, arrival.StatusDeparted, arrival.MinutesDeparted),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 3, IncludeOffRoute: true, RouteCount: 8})
	if !got.GroupingApplied {
		t.Fatal("expected grouping")
	}
	if len(got.Displayed) != 3 {
		t.Errorf("expected 3 displayed, got %d", len(got.Displayed))
	}
	if len(got.Hidden) != 5 {
		t.Errorf("expected 5 hidden, got %d", len(got.Hidden))
	}
	if got.Displayed[0].Arrival.Status != arrival.StatusAtStop {
		t.Errorf("display must start with an at_stop vehicle, got %s", got.Displayed[0].Arrival.Status)
	}
}

func TestGroupingInvariants(t *testing.T) {
	in := []proximity.StationVehicle{
		sv(1, 1, arrival.StatusInMinutes, 3),
		sv(2, 1, arrival.StatusInMinutes, 6),
		sv(3, 2, arrival.StatusDeparted, arrival.MinutesDeparted),
		sv(4, 2, arrival.StatusInMinutes, 2),
		sv(5, 3, arrival.StatusAtStop, 0),
		sv(6, 3, arrival.StatusJustLeft, arrival.MinutesJustLeft),
		sv(7, 4, arrival.StatusInMinutes, 9),
	}
	got := GroupVehiclesForDisplay(in, Options{MaxVehicles: 4, IncludeOffRoute: true, RouteCount: 4})

	if len(got.Displayed)+len(got.Hidden) != len(in) {
		t.Errorf("displayed+hidden must equal the post-filter input: %d + %d != %d",
			len(got.Displayed), len(got.Hidden), len(in))
	}
	if len(got.Displayed) > 4 {
		t.Errorf("display cap violated: %d", len(got.Displayed))
	}

	seen := make(map[groupKey]bool)
	for _, d := range got.Displayed {
		key := groupKey{routeID: d.Route.ID, status: d.Arrival.Status}
		if seen[key] {
			t.Errorf("duplicate (route, status) pair in display: %+v", key)
		}
		seen[key] = true
	}

	// No departed vehicle may precede a non-departed one.
	for i, d := range got.Displayed {
		if d.Arrival.Status != arrival.StatusDeparted {
			continue
		}
		for _, later := range got.Displayed[i+1:] {
			if later.Arrival.Status != arrival.StatusDeparted && later.Arrival.Status != arrival.StatusOffRoute {
				t.Errorf("departed vehicle ordered before %s", later.Arrival.Status)
			}
		}
	}
}
