package grouping

import (
	"sort"

	"transit-proximity/internal/arrival"
	"transit-proximity/internal/proximity"
)

// DefaultMaxVehicles is the hard display cap when none is configured.
const DefaultMaxVehicles = 3

// Options control one grouping run for a single station.
type Options struct {
	MaxVehicles     int
	IncludeOffRoute bool
	RouteCount      int // routes serving the station
}

// Grouped is the bounded display subset plus everything collapsed away.
type Grouped struct {
	Displayed       []proximity.StationVehicle
	Hidden          []proximity.StationVehicle
	GroupingApplied bool
}

type groupKey struct {
	routeID int
	status  arrival.Status
}

// GroupVehiclesForDisplay collapses an overcrowded multi-route station
// display to a bounded, deterministically ordered subset. Grouping keeps
// at most one vehicle per (route, status) pair — the one arriving
// earliest — then orders by status priority and ascending minutes and
// truncates to the cap. Single-route stations always show everything:
// grouping exists to manage multi-route clutter.
func GroupVehiclesForDisplay(vehicles []proximity.StationVehicle, opts Options) Grouped {
	maxVehicles := opts.MaxVehicles
	if maxVehicles <= 0 {
		maxVehicles = DefaultMaxVehicles
	}

	kept := make([]proximity.StationVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if !opts.IncludeOffRoute && v.Arrival.Status == arrival.StatusOffRoute {
			continue
		}
		kept = append(kept, v)
	}

	if opts.RouteCount <= 1 || len(kept) <= maxVehicles {
		return Grouped{Displayed: kept}
	}

	// One representative per (route, status): earliest estimated minutes,
	// first-seen wins ties so the choice is stable.
	repIdx := make(map[groupKey]int)
	var order []groupKey
	hidden := make([]proximity.StationVehicle, 0, len(kept))
	for i, v := range kept {
		key := groupKey{routeID: v.Route.ID, status: v.Arrival.Status}
		j, ok := repIdx[key]
		if !ok {
			repIdx[key] = i
			order = append(order, key)
			continue
		}
		if v.Arrival.EstimatedMinutes < kept[j].Arrival.EstimatedMinutes {
			hidden = append(hidden, kept[j])
			repIdx[key] = i
		} else {
			hidden = append(hidden, v)
		}
	}

	displayed := make([]proximity.StationVehicle, 0, len(order))
	for _, key := range order {
		displayed = append(displayed, kept[repIdx[key]])
	}
	sort.SliceStable(displayed, func(a, b int) bool {
		return arrival.Less(displayed[a].Arrival, displayed[b].Arrival)
	})

	if len(displayed) > maxVehicles {
		hidden = append(hidden, displayed[maxVehicles:]...)
		displayed = displayed[:maxVehicles]
	}
	return Grouped{Displayed: displayed, Hidden: hidden, GroupingApplied: true}
}
