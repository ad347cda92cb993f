package roles

import "transit-proximity/internal/gtfs"

// Role classifies how a route uses a station.
type Role int

const (
	RoleStandard Role = iota
	RoleStart
	RoleEnd
	RoleTurnaround
)

func (r Role) String() string {
	switch r {
	case RoleStart:
		return "start"
	case RoleEnd:
		return "end"
	case RoleTurnaround:
		return "turnaround"
	default:
		return "standard"
	}
}

// TripEndpoints returns the origin and terminus stop ids of a trip, taken
// from the lowest and highest stop_sequence among its stop_times. A trip
// with no stop_times yields (0, 0).
func TripEndpoints(tripID string, stopTimes []gtfs.StopTime) (start, end int) {
	minSeq, maxSeq := -1, -1
	for _, st := range stopTimes {
		if st.TripID != tripID {
			continue
		}
		if minSeq == -1 || st.StopSequence < minSeq {
			minSeq = st.StopSequence
			start = st.StopID
		}
		if maxSeq == -1 || st.StopSequence > maxSeq {
			maxSeq = st.StopSequence
			end = st.StopID
		}
	}
	return start, end
}

// AggregateRoute classifies every station touched by a route's trips.
// A station that originates at least one trip and terminates at least one
// (possibly different) trip is a turnaround; origin-only is start,
// terminus-only is end, any other touched station is standard. Stations
// with no stop_time membership on the route are absent from the map.
func AggregateRoute(routeID int, trips []gtfs.Trip, stopTimes []gtfs.StopTime) map[int]Role {
	routeTrips := make(map[string]bool)
	for _, t := range trips {
		if t.RouteID == routeID {
			routeTrips[t.TripID] = true
		}
	}
	if len(routeTrips) == 0 {
		return map[int]Role{}
	}

	touched := make(map[int]bool)
	starts := make(map[int]bool)
	ends := make(map[int]bool)
	for tripID := range routeTrips {
		s, e := TripEndpoints(tripID, stopTimes)
		if s == 0 && e == 0 {
			continue
		}
		starts[s] = true
		ends[e] = true
	}
	for _, st := range stopTimes {
		if routeTrips[st.TripID] {
			touched[st.StopID] = true
		}
	}

	out := make(map[int]Role, len(touched))
	for stopID := range touched {
		switch {
		case starts[stopID] && ends[stopID]:
			out[stopID] = RoleTurnaround
		case starts[stopID]:
			out[stopID] = RoleStart
		case ends[stopID]:
			out[stopID] = RoleEnd
		default:
			out[stopID] = RoleStandard
		}
	}
	return out
}

// IsStationEndForTrip reports whether stationID is the terminus of the
// given trip. A trip with no stop_times is never ended anywhere.
func IsStationEndForTrip(stationID int, tripID string, stopTimes []gtfs.StopTime) bool {
	start, end := TripEndpoints(tripID, stopTimes)
	if start == 0 && end == 0 {
		return false
	}
	return stationID == end
}
