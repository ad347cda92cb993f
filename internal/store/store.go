package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"transit-proximity/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchStops loads the full stop set. A fetch is a wholesale replacement
// of the previous dataset, never a diff. Rows with non-numeric stop ids
// are skipped rather than failing the load.
func FetchStops(ctx context.Context, db *sql.DB) ([]gtfs.Stop, error) {
	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		q = `SELECT stop_id::text,
                    COALESCE(stop_code, ''),
                    COALESCE(stop_name, ''),
                    COALESCE(stop_lat, 0),
                    COALESCE(stop_lon, 0),
                    COALESCE(location_type::text, '0')
             FROM stops`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !locExists["stop_loc"] {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT stop_id::text,
                    COALESCE(stop_code, ''),
                    COALESCE(stop_name, ''),
                    COALESCE(ST_Y(stop_loc::geometry), 0),
                    COALESCE(ST_X(stop_loc::geometry), 0),
                    COALESCE(location_type::text, '0')
             FROM stops`
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	var stops []gtfs.Stop
	for rows.Next() {
		var idS, locS string
		var s gtfs.Stop
		if err := rows.Scan(&idS, &s.Code, &s.Name, &s.Lat, &s.Lon, &locS); err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(idS)
		if err != nil {
			continue
		}
		s.ID = id
		if lt, err := strconv.Atoi(locS); err == nil {
			s.LocationType = gtfs.LocationType(lt)
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// FetchRoutes loads the full route set.
func FetchRoutes(ctx context.Context, db *sql.DB) ([]gtfs.Route, error) {
	q := `SELECT route_id::text,
                 COALESCE(route_short_name, ''),
                 COALESCE(route_long_name, ''),
                 COALESCE(route_type::text, '3'),
                 COALESCE(route_color, '')
          FROM routes`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var routes []gtfs.Route
	for rows.Next() {
		var idS, typeS string
		var r gtfs.Route
		if err := rows.Scan(&idS, &r.ShortName, &r.LongName, &typeS, &r.Color); err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(idS)
		if err != nil {
			continue
		}
		r.ID = id
		if rt, err := strconv.Atoi(typeS); err == nil {
			r.Type = gtfs.RouteType(rt)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// FetchTrips loads the full trip set.
func FetchTrips(ctx context.Context, db *sql.DB) ([]gtfs.Trip, error) {
	q := `SELECT trip_id, route_id::text, COALESCE(shape_id, '') FROM trips`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []gtfs.Trip
	for rows.Next() {
		var routeS string
		var t gtfs.Trip
		if err := rows.Scan(&t.TripID, &routeS, &t.ShapeID); err != nil {
			return nil, err
		}
		routeID, err := strconv.Atoi(routeS)
		if err != nil {
			continue
		}
		t.RouteID = routeID
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// FetchStopTimes loads the full stop_time set ordered by trip and sequence.
func FetchStopTimes(ctx context.Context, db *sql.DB) ([]gtfs.StopTime, error) {
	q := `SELECT trip_id, stop_id::text, stop_sequence
          FROM stop_times ORDER BY trip_id, stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var sts []gtfs.StopTime
	for rows.Next() {
		var stopS string
		var st gtfs.StopTime
		if err := rows.Scan(&st.TripID, &stopS, &st.StopSequence); err != nil {
			return nil, err
		}
		stopID, err := strconv.Atoi(stopS)
		if err != nil {
			continue
		}
		st.StopID = stopID
		sts = append(sts, st)
	}
	return sts, rows.Err()
}

// FetchRouteShapes loads one representative shape per route, keyed by
// route id. Routes without shape data are simply absent; the estimator
// falls back to stop-sequence counting for them.
func FetchRouteShapes(ctx context.Context, db *sql.DB, trips []gtfs.Trip) (map[int][]gtfs.ShapePoint, error) {
	shapeByRoute := make(map[int]string)
	for _, t := range trips {
		if t.ShapeID == "" {
			continue
		}
		if _, ok := shapeByRoute[t.RouteID]; !ok {
			shapeByRoute[t.RouteID] = t.ShapeID
		}
	}

	out := make(map[int][]gtfs.ShapePoint, len(shapeByRoute))
	for routeID, shapeID := range shapeByRoute {
		pts, err := fetchShapePoints(ctx, db, shapeID)
		if err != nil {
			return nil, err
		}
		if len(pts) > 0 {
			out[routeID] = pts
		}
	}
	return out, nil
}

func fetchShapePoints(ctx context.Context, db *sql.DB, shapeID string) ([]gtfs.ShapePoint, error) {
	latlonExists, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_lat", "shape_pt_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var q string
	if latlonExists["shape_pt_lat"] && latlonExists["shape_pt_lon"] {
		q = `SELECT shape_pt_lat, shape_pt_lon, shape_pt_sequence, COALESCE(shape_dist_traveled, 0)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect shapes shape_pt_loc: %w", err)
		}
		if !locExists["shape_pt_loc"] {
			return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
		}
		q = `SELECT ST_Y(shape_pt_loc::geometry) AS lat,
                    ST_X(shape_pt_loc::geometry) AS lon,
                    shape_pt_sequence,
                    COALESCE(shape_dist_traveled, 0)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	}
	rows, err := db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()
	var pts []gtfs.ShapePoint
	for rows.Next() {
		var p gtfs.ShapePoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.Sequence, &p.DistTraveled); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
