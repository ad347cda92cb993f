package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"transit-proximity/internal/config"
	"transit-proximity/internal/engine"
	"transit-proximity/internal/feed"
	"transit-proximity/internal/gtfs"
	"transit-proximity/internal/metrics"
	"transit-proximity/internal/store"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Resolve latest city database if CITY is set; connect to cluster's meta DB first (usually 'postgres')
	var sqlDB *sql.DB
	var currentDBName string
	{
		baseDSN := cfg.DatabaseURL
		rootDSN, err := store.WithDBName(baseDSN, "postgres")
		if err != nil {
			log.Fatalf("invalid base DSN: %v", err)
		}
		metaDB, err := store.Open(rootDSN)
		if err != nil {
			log.Fatalf("db open (meta) error: %v", err)
		}
		defer metaDB.Close()
		if err := store.Ping(ctx, metaDB); err != nil {
			log.Fatalf("db ping (meta) error: %v", err)
		}
		finalDSN := baseDSN
		if cfg.City != "" {
			name, err := store.ResolveLatestImportDBName(ctx, metaDB, cfg.City)
			if err != nil {
				log.Fatalf("resolve latest import for city %q: %v", cfg.City, err)
			}
			currentDBName = name
			finalDSN, err = store.WithDBName(baseDSN, name)
			if err != nil {
				log.Fatalf("compose DSN: %v", err)
			}
			log.Printf("Using database %q for city %q", name, cfg.City)
		}
		sqlDB, err = store.Open(finalDSN)
		if err != nil {
			log.Fatalf("db open (city) error: %v", err)
		}
		defer sqlDB.Close()
		if err := store.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping (city) error: %v", err)
		}
	}

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SecondaryMeters, cfg.RefilterMeters, cfg.RefreshInterval, cfg.MaxDisplayVehicles)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Connect the live feed and subscribe to vehicle reports
	f, err := feed.Connect(cfg.NATSURL, cfg.LogNATSSubjects, wrapFeedMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer f.Close()
	if err := f.SubscribeVehicles(cfg.VehiclesSubject); err != nil {
		log.Fatalf("subscribe vehicles: %v", err)
	}

	// Build the engine, load the initial reference snapshot and start the
	// periodic refresher. The DB watcher below may replace the engine, so
	// the position callback reads it under a lock.
	var engMu sync.Mutex
	eng := startEngine(ctx, sqlDB, f, cfg, mcol)

	// User position reports drive the filter pipeline
	if err := f.SubscribePositions(cfg.PositionsSubject, func(pos gtfs.Position) {
		engMu.Lock()
		e := eng
		engMu.Unlock()
		e.OnPosition(pos)
	}); err != nil {
		log.Fatalf("subscribe positions: %v", err)
	}

	// Start periodic city DB watcher (every 30 minutes) if CITY is set
	var done chan struct{}
	if cfg.City != "" {
		done = make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Minute)
			defer ticker.Stop()
			baseDSN := cfg.DatabaseURL
			for {
				select {
				case <-ctx.Done():
					close(done)
					return
				case <-ticker.C:
				}

				// 1) Ping current DB; if it fails, force re-resolve
				needSwitch := false
				if err := store.Ping(ctx, sqlDB); err != nil {
					log.Printf("db ping failed: %v — re-resolving city DB", err)
					needSwitch = true
				}

				// 2) Always re-resolve latest import, compare db_name
				rootDSN, _ := store.WithDBName(baseDSN, "postgres")
				metaDB, err := store.Open(rootDSN)
				if err != nil {
					log.Printf("meta db open error: %v", err)
					continue
				}
				if err := store.Ping(ctx, metaDB); err != nil {
					log.Printf("meta db ping error: %v", err)
					metaDB.Close()
					continue
				}
				newName, err := store.ResolveLatestImportDBName(ctx, metaDB, cfg.City)
				metaDB.Close()
				if err != nil {
					log.Printf("resolve latest import error: %v", err)
					continue
				}
				if newName != "" && newName != currentDBName {
					log.Printf("Detected updated DB for city %q: %q -> %q", cfg.City, currentDBName, newName)
					needSwitch = true
				}

				if !needSwitch {
					continue
				}

				targetName := currentDBName
				if newName != "" {
					targetName = newName
				}
				newDSN, err := store.WithDBName(baseDSN, targetName)
				if err != nil {
					log.Printf("compose DSN error: %v", err)
					continue
				}
				newDB, err := store.Open(newDSN)
				if err != nil {
					log.Printf("open new DB error: %v", err)
					continue
				}
				if err := store.Ping(ctx, newDB); err != nil {
					log.Printf("ping new DB error: %v", err)
					newDB.Close()
					continue
				}

				// Stop current engine and switch
				engMu.Lock()
				eng.Stop()
				sqlDB.Close()
				sqlDB = newDB
				currentDBName = targetName
				log.Printf("Switched to DB %q for city %q", currentDBName, cfg.City)
				eng = startEngine(ctx, sqlDB, f, cfg, mcol)
				engMu.Unlock()
			}
		}()
	}

	// Block until context cancelled
	<-ctx.Done()
	eng.Stop()
	if done != nil {
		<-done
	}
	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("shutdown complete")
	_ = os.Stderr
}

func startEngine(ctx context.Context, sqlDB *sql.DB, f *feed.Feed, cfg *config.Config, mcol *metrics.Collector) *engine.Engine {
	eng := engine.New(sqlDB, f, mcol, engine.Options{
		RefreshInterval:    cfg.RefreshInterval,
		VehicleStaleAfter:  cfg.VehicleStaleAfter,
		RoleCacheTTL:       cfg.RoleCacheTTL,
		SecondaryMeters:    cfg.SecondaryMeters,
		RefilterMeters:     cfg.RefilterMeters,
		MaxDisplayVehicles: cfg.MaxDisplayVehicles,
		IncludeOffRoute:    cfg.IncludeOffRoute,
		EnableProximity:    cfg.EnableProximity,
	})
	if err := eng.Refresh(ctx); err != nil {
		log.Fatalf("initial reference refresh error: %v", err)
	}
	eng.StartRefresher(ctx)
	return eng
}

// wrapFeedMetrics adapts our Collector to the feed.Metrics interface.
func wrapFeedMetrics(c *metrics.Collector) feed.Metrics {
	if c == nil {
		return nil
	}
	return &feedMetrics{c: c}
}

type feedMetrics struct{ c *metrics.Collector }

func (f *feedMetrics) VehicleMessageInc()             { f.c.VehicleMessages.Inc() }
func (f *feedMetrics) DecodeErrInc()                  { f.c.DecodeErrs.Inc() }
func (f *feedMetrics) PositionMessageInc()            { f.c.PositionReports.Inc() }
func (f *feedMetrics) PublishedInc()                  { f.c.Published.Inc() }
func (f *feedMetrics) PublishErrInc()                 { f.c.PublishErrs.Inc() }
func (f *feedMetrics) PublishObserve(d time.Duration) { f.c.PublishDuration.Observe(d.Seconds()) }
func (f *feedMetrics) SetConnected(b bool) {
	if b {
		f.c.NATSConnected.Set(1)
	} else {
		f.c.NATSConnected.Set(0)
	}
}
