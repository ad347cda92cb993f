package roles

import "transit-proximity/internal/gtfs"

// ShouldShowDropOffIndicator reports whether every relevant vehicle for a
// station is terminating there, i.e. boarding is pointless. An empty
// vehicle list makes no claim and returns false; a single vehicle without
// a trip, or whose trip does not terminate at the station, hides the
// indicator for the whole station.
func ShouldShowDropOffIndicator(vehicles []gtfs.Vehicle, stationID int, stopTimes []gtfs.StopTime) bool {
	if len(vehicles) == 0 {
		return false
	}
	for _, v := range vehicles {
		if v.TripID == "" {
			return false
		}
		if !IsStationEndForTrip(stationID, v.TripID, stopTimes) {
			return false
		}
	}
	return true
}
