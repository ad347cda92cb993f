package proximity

import "fmt"

// Presentation helpers. Consumers may trivially reimplement these; they
// are not part of the filtering contract.

func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

func (t StationType) Label() string {
	if t == StationPrimary {
		return "Closest stop"
	}
	return "Nearby stop"
}

func (t StationType) Color() string {
	if t == StationPrimary {
		return "#1976d2"
	}
	return "#757575"
}
