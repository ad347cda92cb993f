package engine

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"transit-proximity/internal/arrival"
	"transit-proximity/internal/feed"
	"transit-proximity/internal/gtfs"
	"transit-proximity/internal/metrics"
	"transit-proximity/internal/proximity"
	"transit-proximity/internal/roles"
	"transit-proximity/internal/store"
)

// Snapshot is one immutable view of the reference dataset. Refreshes build
// a new snapshot and swap it in atomically; computations in flight keep
// the one they started with.
type Snapshot struct {
	Version   uint64
	Stops     []gtfs.Stop
	Routes    []gtfs.Route
	Trips     []gtfs.Trip
	StopTimes []gtfs.StopTime
	Shapes    map[int][]gtfs.ShapePoint
	LoadedAt  time.Time

	estimator *arrival.Estimator
}

// Options carry the tuning knobs from config.
type Options struct {
	RefreshInterval    time.Duration
	VehicleStaleAfter  time.Duration
	RoleCacheTTL       time.Duration
	SecondaryMeters    float64
	RefilterMeters     float64
	MaxDisplayVehicles int
	IncludeOffRoute    bool
	EnableProximity    bool
}

// Engine owns the current snapshot and the derived caches, and runs the
// filter pipeline on every position report.
type Engine struct {
	db   *sql.DB
	feed *feed.Feed
	mcol *metrics.Collector
	opts Options

	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64

	roleCache   *roles.Cache
	filterCache *proximity.Cache

	posMu   sync.Mutex
	lastPos *gtfs.Position

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
	bgWG          sync.WaitGroup

	bgMu     sync.Mutex
	inflight map[proximity.CellKey]struct{}
}

func New(db *sql.DB, f *feed.Feed, mcol *metrics.Collector, opts Options) *Engine {
	return &Engine{
		db:          db,
		feed:        f,
		mcol:        mcol,
		opts:        opts,
		roleCache:   roles.NewCache(opts.RoleCacheTTL),
		filterCache: proximity.NewCache(16),
		inflight:    make(map[proximity.CellKey]struct{}),
	}
}

// Refresh reloads the reference dataset wholesale and swaps in a new
// snapshot. Derived caches are invalidated; the next queries recompute
// against the new data.
func (e *Engine) Refresh(ctx context.Context) error {
	start := time.Now()
	stops, err := store.FetchStops(ctx, e.db)
	if err != nil {
		return err
	}
	routes, err := store.FetchRoutes(ctx, e.db)
	if err != nil {
		return err
	}
	trips, err := store.FetchTrips(ctx, e.db)
	if err != nil {
		return err
	}
	stopTimes, err := store.FetchStopTimes(ctx, e.db)
	if err != nil {
		return err
	}
	shapes, err := store.FetchRouteShapes(ctx, e.db, trips)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Version:   e.version.Add(1),
		Stops:     stops,
		Routes:    routes,
		Trips:     trips,
		StopTimes: stopTimes,
		Shapes:    shapes,
		LoadedAt:  time.Now(),
	}
	e.installSnapshot(snap)

	if e.mcol != nil {
		e.mcol.RefreshRuns.Inc()
		e.mcol.RefreshDuration.Observe(time.Since(start).Seconds())
	}
	log.Printf("reference refresh v%d: %d stops, %d routes, %d trips, %d stop_times, %d shapes",
		snap.Version, len(stops), len(routes), len(trips), len(stopTimes), len(shapes))
	return nil
}

func (e *Engine) installSnapshot(snap *Snapshot) {
	stopsByID := make(map[int]gtfs.Stop, len(snap.Stops))
	for _, s := range snap.Stops {
		stopsByID[s.ID] = s
	}
	snap.estimator = arrival.NewEstimator(stopsByID, snap.Shapes)
	e.snap.Store(snap)
	e.roleCache.Invalidate()
	e.filterCache.Clear()
	if e.mcol != nil {
		e.mcol.RoleRecomputes.Inc()
	}
}

// StartRefresher launches the periodic reference refresh loop and expires
// stale vehicle reports on the same tick.
func (e *Engine) StartRefresher(parent context.Context) {
	if e.opts.RefreshInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	e.refreshCancel = cancel
	e.refreshWG.Add(1)
	go func() {
		defer e.refreshWG.Done()
		ticker := time.NewTicker(e.opts.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.Refresh(ctx); err != nil {
					if e.mcol != nil {
						e.mcol.RefreshErrs.Inc()
					}
					log.Printf("reference refresh error: %v", err)
				}
				if e.feed != nil && e.opts.VehicleStaleAfter > 0 {
					removed := e.feed.Expire(e.opts.VehicleStaleAfter)
					if removed > 0 {
						log.Printf("expired %d stale vehicle reports", removed)
					}
					if e.mcol != nil {
						e.mcol.TrackedVehicles.Set(float64(len(e.feed.Snapshot())))
					}
				}
			}
		}
	}()
}

func (e *Engine) Stop() {
	if e.refreshCancel != nil {
		e.refreshCancel()
	}
	e.refreshWG.Wait()
	e.bgWG.Wait()
}

// OnPosition runs the filter pipeline for a user position. Within the
// refilter distance of the last handled position the previous cell is
// served as-is; a cache hit is returned immediately while a fresh
// computation replaces it in the background (stale results tolerated for
// up to one refresh cycle). One background refresh runs per cell at a
// time: a burst of reports for the same cell coalesces into it.
func (e *Engine) OnPosition(pos gtfs.Position) proximity.Result {
	snap := e.snap.Load()
	if snap == nil {
		return proximity.Result{State: proximity.StateNotReady}
	}

	e.posMu.Lock()
	if e.lastPos != nil && !proximity.ShouldRefilter(*e.lastPos, pos, e.opts.RefilterMeters) {
		pos = *e.lastPos
	} else {
		p := pos
		e.lastPos = &p
	}
	e.posMu.Unlock()

	if cached, _, ok := e.filterCache.Get(pos); ok {
		if e.mcol != nil {
			e.mcol.CacheHits.Inc()
		}
		if cell := proximity.Quantize(pos); e.beginRefresh(cell) {
			e.bgWG.Add(1)
			go func() {
				defer e.bgWG.Done()
				defer e.endRefresh(cell)
				e.recompute(snap, pos)
			}()
		}
		return cached
	}
	if e.mcol != nil {
		e.mcol.CacheMisses.Inc()
	}
	return e.recompute(snap, pos)
}

// beginRefresh marks a cell's background recomputation as in flight.
// It reports false when one is already running for that cell.
func (e *Engine) beginRefresh(cell proximity.CellKey) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if _, ok := e.inflight[cell]; ok {
		return false
	}
	e.inflight[cell] = struct{}{}
	return true
}

func (e *Engine) endRefresh(cell proximity.CellKey) {
	e.bgMu.Lock()
	delete(e.inflight, cell)
	e.bgMu.Unlock()
}

// recompute runs the filter against a snapshot and stores the result. A
// newer snapshot invalidates the outcome: the result of a stale
// computation is discarded, last writer wins.
func (e *Engine) recompute(snap *Snapshot, pos gtfs.Position) proximity.Result {
	start := time.Now()
	var vehicles []gtfs.Vehicle
	if e.feed != nil {
		vehicles = e.feed.Snapshot()
	}
	res := proximity.FilterStations(snap.Stops, &pos, snap.StopTimes, vehicles, snap.Routes, snap.Trips, proximity.Options{
		EnableProximity: e.opts.EnableProximity,
		SecondaryMeters: e.opts.SecondaryMeters,
		Estimator:       snap.estimator,
	})
	if e.mcol != nil {
		e.mcol.FilterRuns.Inc()
		e.mcol.FilterDuration.Observe(time.Since(start).Seconds())
		e.mcol.StationsDisplayed.Set(float64(len(res.Stations)))
	}
	if current := e.snap.Load(); current != nil && current.Version != snap.Version {
		return res
	}
	e.filterCache.Put(pos, res)
	e.publish(snap, pos, res)
	return res
}

func (e *Engine) publish(snap *Snapshot, pos gtfs.Position, res proximity.Result) {
	if e.feed == nil || res.State != proximity.StateData {
		return
	}
	payload := e.BuildDisplay(snap, res)
	cell := proximity.Quantize(pos)
	if err := e.feed.PublishStations(cell.String(), payload); err != nil {
		log.Printf("publish stations error: %v", err)
	}
}
