package proximity

import (
	"math"
	"sort"

	"transit-proximity/internal/arrival"
	"transit-proximity/internal/geo"
	"transit-proximity/internal/gtfs"
)

// DefaultSecondaryThresholdMeters is the proximity band width around the
// closest station.
const DefaultSecondaryThresholdMeters = 100.0

// StationType marks a filtered station as the single closest one or a
// band member.
type StationType int

const (
	StationAll StationType = iota
	StationPrimary
)

func (t StationType) String() string {
	if t == StationPrimary {
		return "primary"
	}
	return "all"
}

// StationVehicle associates a live vehicle with a station, resolving its
// route, trip and arrival estimate.
type StationVehicle struct {
	Vehicle gtfs.Vehicle
	Route   gtfs.Route
	Trip    gtfs.Trip
	Arrival arrival.ArrivalTime
}

// FilteredStation is one station within the proximity band.
type FilteredStation struct {
	Stop           gtfs.Stop
	DistanceMeters float64
	Type           StationType
	HasActiveTrips bool
	RouteIDs       []int
	Vehicles       []StationVehicle
}

// State distinguishes "filtering could not run" from "ran and found
// nothing".
type State int

const (
	StateNotReady State = iota
	StateEmpty
	StateData
)

// Result is the three-state outcome of a filter run.
type Result struct {
	State    State
	Stations []FilteredStation
}

// Options control a filter run.
type Options struct {
	EnableProximity bool
	SecondaryMeters float64
	Estimator       *arrival.Estimator
}

// FilterStations selects the stations worth showing for a user position:
// the closest stop plus everything within the secondary threshold of it,
// each with serving routes, live vehicles and arrival estimates attached.
// A missing position or not-yet-loaded schedule data yields NotReady, by
// policy, rather than an approximate list.
func FilterStations(
	stops []gtfs.Stop,
	userPos *gtfs.Position,
	stopTimes []gtfs.StopTime,
	vehicles []gtfs.Vehicle,
	routes []gtfs.Route,
	trips []gtfs.Trip,
	opts Options,
) Result {
	if userPos == nil {
		return Result{State: StateNotReady}
	}
	if len(trips) == 0 {
		// Schedule data has not loaded; showing stations now would flash
		// a list with no vehicle or arrival information.
		return Result{State: StateNotReady}
	}
	if len(stops) == 0 {
		return Result{State: StateEmpty}
	}

	threshold := opts.SecondaryMeters
	if threshold <= 0 {
		threshold = DefaultSecondaryThresholdMeters
	}

	dists := make([]float64, len(stops))
	dMin := math.MaxFloat64
	closestIdx := 0
	for i, s := range stops {
		dists[i] = geo.Distance(userPos.Lat, userPos.Lon, s.Lat, s.Lon)
		if dists[i] < dMin {
			dMin = dists[i]
			closestIdx = i
		}
	}

	idx := newIndex(stopTimes, trips, routes, vehicles)

	var out []FilteredStation
	for i, s := range stops {
		if opts.EnableProximity && dists[i] > dMin+threshold {
			continue
		}
		typ := StationAll
		if i == closestIdx {
			typ = StationPrimary
		}
		out = append(out, buildStation(s, dists[i], typ, idx, opts.Estimator))
	}
	if len(out) == 0 {
		return Result{State: StateEmpty}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].DistanceMeters < out[b].DistanceMeters })
	return Result{State: StateData, Stations: out}
}

// index holds the per-run lookup tables walked from stop_times to trips to
// routes. Each filter run builds and discards its own.
type index struct {
	tripsByStop     map[int][]string
	tripByID        map[string]gtfs.Trip
	routeByID       map[int]gtfs.Route
	stopTimesByTrip map[string][]gtfs.StopTime
	vehiclesByTrip  map[string][]gtfs.Vehicle
	vehiclesByRoute map[int][]gtfs.Vehicle
}

func newIndex(stopTimes []gtfs.StopTime, trips []gtfs.Trip, routes []gtfs.Route, vehicles []gtfs.Vehicle) *index {
	idx := &index{
		tripsByStop:     make(map[int][]string),
		tripByID:        make(map[string]gtfs.Trip, len(trips)),
		routeByID:       make(map[int]gtfs.Route, len(routes)),
		stopTimesByTrip: make(map[string][]gtfs.StopTime),
		vehiclesByTrip:  make(map[string][]gtfs.Vehicle),
		vehiclesByRoute: make(map[int][]gtfs.Vehicle),
	}
	for _, t := range trips {
		idx.tripByID[t.TripID] = t
	}
	for _, r := range routes {
		idx.routeByID[r.ID] = r
	}
	for _, st := range stopTimes {
		idx.tripsByStop[st.StopID] = append(idx.tripsByStop[st.StopID], st.TripID)
		idx.stopTimesByTrip[st.TripID] = append(idx.stopTimesByTrip[st.TripID], st)
	}
	for _, v := range vehicles {
		if v.TripID != "" {
			idx.vehiclesByTrip[v.TripID] = append(idx.vehiclesByTrip[v.TripID], v)
		}
		if v.RouteID != 0 {
			idx.vehiclesByRoute[v.RouteID] = append(idx.vehiclesByRoute[v.RouteID], v)
		}
	}
	return idx
}

func buildStation(s gtfs.Stop, dist float64, typ StationType, idx *index, est *arrival.Estimator) FilteredStation {
	fs := FilteredStation{Stop: s, DistanceMeters: dist, Type: typ}

	seenRoute := make(map[int]bool)
	seenVehicle := make(map[int]bool)
	for _, tripID := range idx.tripsByStop[s.ID] {
		trip, ok := idx.tripByID[tripID]
		if !ok {
			continue
		}
		if !seenRoute[trip.RouteID] {
			seenRoute[trip.RouteID] = true
			fs.RouteIDs = append(fs.RouteIDs, trip.RouteID)
		}
		for _, v := range idx.vehiclesByTrip[tripID] {
			if seenVehicle[v.ID] {
				continue
			}
			seenVehicle[v.ID] = true
			fs.HasActiveTrips = true
			sv := StationVehicle{Vehicle: v, Trip: trip, Route: idx.routeByID[trip.RouteID]}
			if est != nil {
				sv.Arrival = est.Estimate(v, s.ID, idx.stopTimesByTrip[tripID])
			}
			fs.Vehicles = append(fs.Vehicles, sv)
		}
	}
	sort.Ints(fs.RouteIDs)

	// Vehicles linked to a serving route but without a trip touching this
	// station still attach, so the estimator can tag them off_route instead
	// of silently dropping them.
	for _, routeID := range fs.RouteIDs {
		for _, v := range idx.vehiclesByRoute[routeID] {
			if seenVehicle[v.ID] {
				continue
			}
			seenVehicle[v.ID] = true
			sv := StationVehicle{Vehicle: v, Trip: idx.tripByID[v.TripID], Route: idx.routeByID[routeID]}
			if est != nil {
				sv.Arrival = est.Estimate(v, s.ID, idx.stopTimesByTrip[v.TripID])
			}
			fs.Vehicles = append(fs.Vehicles, sv)
		}
	}
	return fs
}
