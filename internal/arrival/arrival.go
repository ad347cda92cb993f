package arrival

// Status classifies a vehicle's position relative to a target station
// within its trip's stop order.
type Status int

const (
	StatusAtStop Status = iota
	StatusArrivingSoon
	StatusInMinutes
	StatusJustLeft
	StatusDeparted
	StatusOffRoute
)

// statusPriority is the explicit display ordering. Lower sorts first.
// Kept as a table rather than relying on iota so the ordering contract
// survives any reordering of the constants.
var statusPriority = map[Status]int{
	StatusAtStop:       0,
	StatusArrivingSoon: 1,
	StatusInMinutes:    2,
	StatusJustLeft:     3,
	StatusDeparted:     4,
	StatusOffRoute:     5,
}

func (s Status) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return len(statusPriority)
}

func (s Status) String() string {
	switch s {
	case StatusAtStop:
		return "at_stop"
	case StatusArrivingSoon:
		return "arriving_soon"
	case StatusInMinutes:
		return "in_minutes"
	case StatusJustLeft:
		return "just_left"
	case StatusDeparted:
		return "departed"
	default:
		return "off_route"
	}
}

// Confidence reflects how much geometry backed an estimate.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// Sentinel EstimatedMinutes values for vehicles that will not arrive.
const (
	MinutesJustLeft = -1
	MinutesDeparted = -2
	MinutesOffRoute = 1 << 20
)

// ArrivalTime is the computed estimate for one vehicle-station pair.
type ArrivalTime struct {
	Status           Status
	Message          string
	Confidence       Confidence
	EstimatedMinutes int
	Method           string // diagnostic only
}

// Less is the display ordering: status priority first, then ascending
// estimated minutes. A departed vehicle never sorts before a non-departed
// one because its status priority is strictly higher.
func Less(a, b ArrivalTime) bool {
	pa, pb := a.Status.Priority(), b.Status.Priority()
	if pa != pb {
		return pa < pb
	}
	return a.EstimatedMinutes < b.EstimatedMinutes
}
