package engine

import (
	"transit-proximity/internal/grouping"
	"transit-proximity/internal/gtfs"
	"transit-proximity/internal/proximity"
	"transit-proximity/internal/roles"
)

// StationDisplay is the published, grouped view of one filtered station.
type StationDisplay struct {
	StationID   int              `json:"stationId"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Distance    string           `json:"distance"`
	Routes      []int            `json:"routes"`
	DropOffOnly bool             `json:"dropOffOnly"`
	Vehicles    []VehicleDisplay `json:"vehicles"`
	HiddenCount int              `json:"hiddenCount"`
	Grouped     bool             `json:"grouped"`
}

// VehicleDisplay is one row of a station's vehicle list.
type VehicleDisplay struct {
	VehicleID  int    `json:"vehicleId"`
	RouteShort string `json:"routeShort"`
	RouteColor string `json:"routeColor"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Minutes    int    `json:"minutes"`
	Confidence string `json:"confidence"`
}

// BuildDisplay collapses every filtered station's vehicle list through the
// grouping engine and attaches the drop-off-only indicator.
func (e *Engine) BuildDisplay(snap *Snapshot, res proximity.Result) []StationDisplay {
	out := make([]StationDisplay, 0, len(res.Stations))
	for _, fs := range res.Stations {
		grouped := grouping.GroupVehiclesForDisplay(fs.Vehicles, grouping.Options{
			MaxVehicles:     e.opts.MaxDisplayVehicles,
			IncludeOffRoute: e.opts.IncludeOffRoute,
			RouteCount:      len(fs.RouteIDs),
		})
		vehicles := make([]gtfs.Vehicle, 0, len(fs.Vehicles))
		for _, sv := range fs.Vehicles {
			vehicles = append(vehicles, sv.Vehicle)
		}
		sd := StationDisplay{
			StationID:   fs.Stop.ID,
			Name:        fs.Stop.Name,
			Type:        fs.Type.String(),
			Distance:    proximity.FormatDistance(fs.DistanceMeters),
			Routes:      fs.RouteIDs,
			DropOffOnly: roles.ShouldShowDropOffIndicator(vehicles, fs.Stop.ID, snap.StopTimes),
			HiddenCount: len(grouped.Hidden),
			Grouped:     grouped.GroupingApplied,
		}
		for _, sv := range grouped.Displayed {
			sd.Vehicles = append(sd.Vehicles, VehicleDisplay{
				VehicleID:  sv.Vehicle.ID,
				RouteShort: sv.Route.ShortName,
				RouteColor: sv.Route.Color,
				Status:     sv.Arrival.Status.String(),
				Message:    sv.Arrival.Message,
				Minutes:    sv.Arrival.EstimatedMinutes,
				Confidence: sv.Arrival.Confidence.String(),
			})
		}
		out = append(out, sd)
	}
	return out
}

// RolesForRoute exposes the cached role classification for presentation
// consumers (start/end/turnaround badges on the station list).
func (e *Engine) RolesForRoute(routeID int) map[int]roles.Role {
	snap := e.snap.Load()
	if snap == nil {
		return map[int]roles.Role{}
	}
	return e.roleCache.RolesForRoute(routeID, snap.Trips, snap.StopTimes)
}
