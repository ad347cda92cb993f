package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"transit-proximity/internal/gtfs"
)

// Metrics is the small surface the feed reports into.
type Metrics interface {
	VehicleMessageInc()
	DecodeErrInc()
	PositionMessageInc()
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
	SetConnected(connected bool)
}

// Feed holds the NATS connection, the latest vehicle report per id, and
// the publishing side for computed station displays.
type Feed struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     Metrics

	mu       sync.Mutex
	vehicles map[int]gtfs.Vehicle
	subs     []*nats.Subscription
}

func Connect(url string, logSubjects bool, m Metrics) (*Feed, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-proximity"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &Feed{
		nc:          nc,
		logSubjects: logSubjects,
		metrics:     m,
		vehicles:    make(map[int]gtfs.Vehicle),
	}, nil
}

func (f *Feed) Close() {
	if f.nc != nil {
		f.nc.Drain()
		f.nc.Close()
	}
}

// VehicleMessage is the live-vehicle wire format.
type VehicleMessage struct {
	VehicleID int       `json:"vehicleId"`
	TripID    string    `json:"tripId,omitempty"`
	RouteID   int       `json:"routeId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	SpeedMps  float64   `json:"speedMps"`
}

// PositionMessage is a user location report from the geolocation provider.
type PositionMessage struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SubscribeVehicles consumes live vehicle reports and keeps the latest one
// per vehicle id. Each report supersedes the previous wholesale.
func (f *Feed) SubscribeVehicles(subject string) error {
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		var vm VehicleMessage
		if err := json.Unmarshal(msg.Data, &vm); err != nil {
			if f.metrics != nil {
				f.metrics.DecodeErrInc()
			}
			return
		}
		if f.metrics != nil {
			f.metrics.VehicleMessageInc()
		}
		if f.logSubjects {
			log.Printf("nats vehicle subject=%s id=%d", msg.Subject, vm.VehicleID)
		}
		f.mu.Lock()
		f.vehicles[vm.VehicleID] = gtfs.Vehicle{
			ID:        vm.VehicleID,
			Lat:       vm.Lat,
			Lon:       vm.Lon,
			SpeedMps:  vm.SpeedMps,
			Timestamp: vm.Timestamp,
			TripID:    vm.TripID,
			RouteID:   vm.RouteID,
		}
		f.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return nil
}

// SubscribePositions consumes user position reports and hands each one to
// the callback.
func (f *Feed) SubscribePositions(subject string, fn func(gtfs.Position)) error {
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		var pm PositionMessage
		if err := json.Unmarshal(msg.Data, &pm); err != nil {
			if f.metrics != nil {
				f.metrics.DecodeErrInc()
			}
			return
		}
		if f.metrics != nil {
			f.metrics.PositionMessageInc()
		}
		fn(gtfs.Position{Lat: pm.Lat, Lon: pm.Lon})
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the latest vehicle reports. Consumers get a
// full replacement view; the internal map keeps mutating under new
// messages.
func (f *Feed) Snapshot() []gtfs.Vehicle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gtfs.Vehicle, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		out = append(out, v)
	}
	return out
}

// Expire drops vehicle reports older than the horizon so vanished vehicles
// do not linger in computations.
func (f *Feed) Expire(horizon time.Duration) int {
	cutoff := time.Now().Add(-horizon)
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, v := range f.vehicles {
		if !v.Timestamp.IsZero() && v.Timestamp.Before(cutoff) {
			delete(f.vehicles, id)
			removed++
		}
	}
	return removed
}

// PublishStations publishes a computed station display payload for the
// given cache cell, for downstream presentation consumers.
func (f *Feed) PublishStations(cell string, payload any) error {
	subject := fmt.Sprintf("stations.%s", subjectToken(cell))
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if f.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = f.nc.Publish(subject, b)
	if f.metrics != nil {
		f.metrics.PublishObserve(time.Since(start))
		if err != nil {
			f.metrics.PublishErrInc()
		} else {
			f.metrics.PublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
