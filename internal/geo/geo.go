package geo

import (
	"math"

	"transit-proximity/internal/gtfs"
)

const earthRadiusMeters = 6371000.0

func toRad(d float64) float64 { return d * math.Pi / 180 }

// Distance returns the great-circle distance between two points in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Bearing returns the initial bearing from point 1 to point 2 in degrees (0-360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	y := math.Sin(toRad(lon2-lon1)) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) - math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(toRad(lon2-lon1))
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// CumDistances builds cumulative distances along a shape. Provided
// shape_dist_traveled values are trusted but normalized to be monotonic;
// missing values fall back to haversine accumulation.
func CumDistances(pts []gtfs.ShapePoint) []float64 {
	n := len(pts)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	if pts[0].DistTraveled > 0 {
		prev := 0.0
		for i := 0; i < n; i++ {
			d := pts[i].DistTraveled
			if d < prev {
				d = prev
			}
			cum[i] = d
			prev = d
		}
		return cum
	}
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += Distance(pts[i-1].Lat, pts[i-1].Lon, pts[i].Lat, pts[i].Lon)
		cum[i] = sum
	}
	return cum
}

// ProjectOntoShape projects a point onto the polyline and returns the
// distance along the shape to the nearest point plus the offset from the
// shape in meters. Uses an equirectangular approximation per segment.
func ProjectOntoShape(pts []gtfs.ShapePoint, cum []float64, lat, lon float64) (along, offset float64) {
	n := len(pts)
	if n == 0 {
		return 0, 0
	}
	if len(cum) != n {
		cum = CumDistances(pts)
	}
	cosLat0 := math.Cos(toRad(lat))
	toXY := func(p gtfs.ShapePoint) (x, y float64) {
		y = toRad(p.Lat-lat) * earthRadiusMeters
		x = toRad(p.Lon-lon) * earthRadiusMeters * cosLat0
		return
	}
	bestDist2 := math.MaxFloat64
	bestAlong := 0.0
	x0, y0 := toXY(pts[0])
	for i := 1; i < n; i++ {
		x1, y1 := toXY(pts[i])
		dx := x1 - x0
		dy := y1 - y0
		segLen2 := dx*dx + dy*dy
		t := 0.0
		if segLen2 > 0 {
			t = -(x0*dx + y0*dy) / segLen2 // projection of origin onto segment
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
		}
		px := x0 + t*dx
		py := y0 + t*dy
		d2 := px*px + py*py
		if d2 < bestDist2 {
			bestDist2 = d2
			bestAlong = cum[i-1] + t*(cum[i]-cum[i-1])
		}
		x0, y0 = x1, y1
	}
	return bestAlong, math.Sqrt(bestDist2)
}
