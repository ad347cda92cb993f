package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	TrackedVehicles   prometheus.Gauge
	StationsDisplayed prometheus.Gauge
	NATSConnected     prometheus.Gauge

	FilterRuns      prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	RoleRecomputes  prometheus.Counter
	VehicleMessages prometheus.Counter
	PositionReports prometheus.Counter
	DecodeErrs      prometheus.Counter
	Published       prometheus.Counter
	PublishErrs     prometheus.Counter
	RefreshRuns     prometheus.Counter
	RefreshErrs     prometheus.Counter

	FilterDuration  prometheus.Histogram
	RefreshDuration prometheus.Histogram
	PublishDuration prometheus.Histogram

	SecondaryThreshold prometheus.Gauge
	RefilterThreshold  prometheus.Gauge
	RefreshInterval    prometheus.Gauge // seconds
	MaxDisplayVehicles prometheus.Gauge
}

func NewCollector(secondaryThresholdM, refilterThresholdM float64, refreshInterval time.Duration, maxDisplayVehicles int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_live_vehicles",
			Help: "Number of live vehicles currently tracked.",
		}),
		StationsDisplayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_stations_displayed",
			Help: "Stations in the most recent filter result.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		FilterRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_filter_runs_total",
			Help: "Total station filter computations.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_filter_cache_hits_total",
			Help: "Filter results served from the position cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_filter_cache_misses_total",
			Help: "Filter requests that required a fresh computation.",
		}),
		RoleRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_role_recomputes_total",
			Help: "Station role cache recomputations.",
		}),
		VehicleMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_vehicle_messages_total",
			Help: "Live vehicle reports consumed from NATS.",
		}),
		PositionReports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_position_reports_total",
			Help: "User position reports consumed from NATS.",
		}),
		DecodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_decode_errors_total",
			Help: "Feed messages that failed to decode.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_published_total",
			Help: "Station display payloads published.",
		}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_publish_errors_total",
			Help: "Station display publish errors.",
		}),
		RefreshRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reference_refreshes_total",
			Help: "Reference dataset refresh cycles.",
		}),
		RefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reference_refresh_errors_total",
			Help: "Reference dataset refresh failures.",
		}),
		FilterDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_filter_duration_seconds",
			Help:    "Duration of station filter computations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_refresh_duration_seconds",
			Help:    "Duration of reference dataset refreshes.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a display payload.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SecondaryThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_secondary_threshold_meters",
			Help: "Proximity band width around the closest station.",
		}),
		RefilterThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_refilter_threshold_meters",
			Help: "Movement required before refiltering.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_refresh_interval_seconds",
			Help: "Reference refresh interval in seconds.",
		}),
		MaxDisplayVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_max_display_vehicles",
			Help: "Hard cap on vehicles per station display.",
		}),
	}

	reg.MustRegister(
		c.TrackedVehicles, c.StationsDisplayed, c.NATSConnected,
		c.FilterRuns, c.CacheHits, c.CacheMisses, c.RoleRecomputes,
		c.VehicleMessages, c.PositionReports, c.DecodeErrs,
		c.Published, c.PublishErrs, c.RefreshRuns, c.RefreshErrs,
		c.FilterDuration, c.RefreshDuration, c.PublishDuration,
		c.SecondaryThreshold, c.RefilterThreshold, c.RefreshInterval, c.MaxDisplayVehicles,
	)

	c.SecondaryThreshold.Set(secondaryThresholdM)
	c.RefilterThreshold.Set(refilterThresholdM)
	c.RefreshInterval.Set(refreshInterval.Seconds())
	c.MaxDisplayVehicles.Set(float64(maxDisplayVehicles))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
