package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string
	NATSURL          string
	VehiclesSubject  string
	PositionsSubject string
	MetricsAddr      string
	City             string
	LogNATSSubjects  bool

	RefreshInterval    time.Duration
	VehicleStaleAfter  time.Duration
	RoleCacheTTL       time.Duration
	SecondaryMeters    float64
	RefilterMeters     float64
	MaxDisplayVehicles int
	IncludeOffRoute    bool
	EnableProximity    bool

	Location *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.VehiclesSubject = getenvDefault("VEHICLES_SUBJECT", "vehicles.>")
	cfg.PositionsSubject = getenvDefault("POSITIONS_SUBJECT", "geolocation.position")

	// Reference refresh interval (seconds)
	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid REFRESH_INTERVAL_SEC: %q", v)
		}
		cfg.RefreshInterval = time.Duration(sec) * time.Second
	} else {
		cfg.RefreshInterval = 30 * time.Second
	}

	// Live vehicle staleness horizon (seconds)
	if v := os.Getenv("VEHICLE_STALE_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid VEHICLE_STALE_SEC: %q", v)
		}
		cfg.VehicleStaleAfter = time.Duration(sec) * time.Second
	} else {
		cfg.VehicleStaleAfter = 120 * time.Second
	}

	// Role cache staleness horizon (hours)
	if v := os.Getenv("ROLE_CACHE_TTL_HOURS"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return nil, fmt.Errorf("invalid ROLE_CACHE_TTL_HOURS: %q", v)
		}
		cfg.RoleCacheTTL = time.Duration(h) * time.Hour
	} else {
		cfg.RoleCacheTTL = 24 * time.Hour
	}

	// Proximity band width (meters)
	if v := os.Getenv("SECONDARY_THRESHOLD_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid SECONDARY_THRESHOLD_M: %q", v)
		}
		cfg.SecondaryMeters = f
	} else {
		cfg.SecondaryMeters = 100
	}

	// Movement required before refiltering (meters)
	if v := os.Getenv("REFILTER_DISTANCE_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid REFILTER_DISTANCE_M: %q", v)
		}
		cfg.RefilterMeters = f
	} else {
		cfg.RefilterMeters = 50
	}

	// Display cap per station
	if v := os.Getenv("MAX_DISPLAY_VEHICLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_DISPLAY_VEHICLES: %q", v)
		}
		cfg.MaxDisplayVehicles = n
	} else {
		cfg.MaxDisplayVehicles = 3
	}

	cfg.IncludeOffRoute = parseBool(os.Getenv("INCLUDE_OFF_ROUTE"))
	cfg.EnableProximity = true
	if v := os.Getenv("ENABLE_PROXIMITY"); v != "" {
		cfg.EnableProximity = parseBool(v)
	}

	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	return cfg, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
