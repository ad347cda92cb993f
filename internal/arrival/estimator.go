package arrival

import (
	"fmt"
	"math"
	"sort"

	"transit-proximity/internal/geo"
	"transit-proximity/internal/gtfs"
)

const (
	// defaultSpeedMps is assumed when the vehicle reports no usable speed.
	defaultSpeedMps = 5.0
	// minutesPerStop is the sequence-counting fallback rate.
	minutesPerStop = 2
	// arrivingSoonMaxMinutes is the lead window for arriving_soon.
	arrivingSoonMaxMinutes = 1
)

// strategy estimates the minutes a vehicle needs to reach a station it has
// not yet passed. ok is false when the strategy lacks the data to answer.
type strategy interface {
	name() string
	minutesTo(v gtfs.Vehicle, station gtfs.Stop, gap int) (minutes int, conf Confidence, ok bool)
}

// shapeStrategy measures the remaining distance along the route shape.
type shapeStrategy struct {
	pts []gtfs.ShapePoint
	cum []float64
}

func (s *shapeStrategy) name() string { return "shape_projection" }

func (s *shapeStrategy) minutesTo(v gtfs.Vehicle, station gtfs.Stop, gap int) (int, Confidence, bool) {
	if len(s.pts) < 2 {
		return 0, ConfidenceLow, false
	}
	alongVehicle, _ := geo.ProjectOntoShape(s.pts, s.cum, v.Lat, v.Lon)
	alongStation, _ := geo.ProjectOntoShape(s.pts, s.cum, station.Lat, station.Lon)
	remaining := alongStation - alongVehicle
	if remaining < 0 {
		// Projection disagrees with the stop-sequence gap; let the
		// sequence fallback answer instead.
		return 0, ConfidenceLow, false
	}
	speed := v.SpeedMps
	if speed < 1 {
		speed = defaultSpeedMps
	}
	minutes := int(math.Ceil(remaining / speed / 60))
	return minutes, ConfidenceHigh, true
}

// sequenceStrategy counts remaining stops at a flat rate.
type sequenceStrategy struct{}

func (sequenceStrategy) name() string { return "stop_sequence" }

func (sequenceStrategy) minutesTo(v gtfs.Vehicle, station gtfs.Stop, gap int) (int, Confidence, bool) {
	conf := ConfidenceMedium
	if v.SpeedMps <= 0 {
		conf = ConfidenceLow
	}
	return gap * minutesPerStop, conf, true
}

// Estimator computes arrival estimates for vehicle-station pairs against a
// reference snapshot. Strategies are chosen by data availability: a route
// shape upgrades the estimate to path-distance math, otherwise plain
// stop-sequence counting applies.
type Estimator struct {
	stops    map[int]gtfs.Stop
	shapes   map[int][]gtfs.ShapePoint // by route id
	shapeCum map[int][]float64
}

func NewEstimator(stops map[int]gtfs.Stop, shapes map[int][]gtfs.ShapePoint) *Estimator {
	cum := make(map[int][]float64, len(shapes))
	for routeID, pts := range shapes {
		cum[routeID] = geo.CumDistances(pts)
	}
	return &Estimator{stops: stops, shapes: shapes, shapeCum: cum}
}

// Estimate computes the ArrivalTime for one vehicle against one station,
// given the stop_times of the vehicle's trip. Missing linkage (no trip,
// trip not serving the station, unresolvable geometry) degrades to
// off_route, never an error.
func (e *Estimator) Estimate(v gtfs.Vehicle, stationID int, tripStopTimes []gtfs.StopTime) ArrivalTime {
	if v.TripID == "" || len(tripStopTimes) == 0 {
		return offRoute("no_trip")
	}

	seq := make([]gtfs.StopTime, len(tripStopTimes))
	copy(seq, tripStopTimes)
	sort.Slice(seq, func(i, j int) bool { return seq[i].StopSequence < seq[j].StopSequence })

	stationIdx := -1
	for i, st := range seq {
		if st.StopID == stationID {
			stationIdx = i
			break
		}
	}
	if stationIdx == -1 {
		return offRoute("not_served")
	}

	vehicleIdx := e.nearestStopIndex(v, seq)
	if vehicleIdx == -1 {
		return offRoute("unresolvable")
	}

	gap := stationIdx - vehicleIdx
	switch {
	case gap == 0:
		return ArrivalTime{Status: StatusAtStop, Message: "At stop", Confidence: ConfidenceHigh, EstimatedMinutes: 0, Method: "stop_sequence"}
	case gap == -1:
		return ArrivalTime{Status: StatusJustLeft, Message: "Just left", Confidence: ConfidenceMedium, EstimatedMinutes: MinutesJustLeft, Method: "stop_sequence"}
	case gap < -1:
		return ArrivalTime{Status: StatusDeparted, Message: "Departed", Confidence: ConfidenceMedium, EstimatedMinutes: MinutesDeparted, Method: "stop_sequence"}
	}

	station, ok := e.stops[stationID]
	if !ok {
		return offRoute("unresolvable")
	}

	strat := e.strategyFor(v.RouteID)
	minutes, conf, ok := strat.minutesTo(v, station, gap)
	if !ok {
		strat = sequenceStrategy{}
		minutes, conf, _ = strat.minutesTo(v, station, gap)
	}
	if minutes < 1 {
		minutes = 1
	}
	if minutes <= arrivingSoonMaxMinutes {
		return ArrivalTime{Status: StatusArrivingSoon, Message: "Arriving soon", Confidence: conf, EstimatedMinutes: minutes, Method: strat.name()}
	}
	return ArrivalTime{
		Status:           StatusInMinutes,
		Message:          fmt.Sprintf("%d min", minutes),
		Confidence:       conf,
		EstimatedMinutes: minutes,
		Method:           strat.name(),
	}
}

func (e *Estimator) strategyFor(routeID int) strategy {
	if pts, ok := e.shapes[routeID]; ok && len(pts) >= 2 {
		return &shapeStrategy{pts: pts, cum: e.shapeCum[routeID]}
	}
	return sequenceStrategy{}
}

// nearestStopIndex resolves the stop-sequence index the vehicle is closest
// to, or -1 when none of the trip's stops have coordinates.
func (e *Estimator) nearestStopIndex(v gtfs.Vehicle, seq []gtfs.StopTime) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, st := range seq {
		stop, ok := e.stops[st.StopID]
		if !ok {
			continue
		}
		d := geo.Distance(v.Lat, v.Lon, stop.Lat, stop.Lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func offRoute(method string) ArrivalTime {
	return ArrivalTime{
		Status:           StatusOffRoute,
		Message:          "Off route",
		Confidence:       ConfidenceLow,
		EstimatedMinutes: MinutesOffRoute,
		Method:           method,
	}
}
