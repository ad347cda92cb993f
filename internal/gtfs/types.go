package gtfs

import "time"

type LocationType int

const (
	LocationPlatform LocationType = iota
	LocationStation
	LocationEntrance
	LocationGenericNode
	LocationBoardingArea
)

type RouteType int

const (
	RouteTram RouteType = iota
	RouteMetro
	RouteRail
	RouteBus
	RouteFerry
	RouteCableTram
	RouteAerialLift
	RouteFunicular
	RouteTrolleybus RouteType = 11
	RouteMonorail   RouteType = 12
)

type Stop struct {
	ID           int
	Code         string
	Name         string
	Lat          float64
	Lon          float64
	LocationType LocationType
}

type Route struct {
	ID        int
	ShortName string
	LongName  string
	Type      RouteType
	Color     string
}

type Trip struct {
	TripID  string
	RouteID int
	ShapeID string
}

type StopTime struct {
	TripID       string
	StopID       int
	StopSequence int
}

type ShapePoint struct {
	Lat          float64
	Lon          float64
	Sequence     int
	DistTraveled float64 // meters, if available; 0 if missing
}

// Vehicle is a live position report. Reports are superseded wholesale on
// every feed tick, never patched in place.
type Vehicle struct {
	ID        int
	Lat       float64
	Lon       float64
	SpeedMps  float64
	Timestamp time.Time
	TripID    string // empty when the feed could not match a trip
	RouteID   int    // 0 when unknown
}

// Position is a user location as reported by the geolocation provider.
type Position struct {
	Lat float64
	Lon float64
}
