package geo

import (
	"math"
	"testing"

	"transit-proximity/internal/gtfs"
)

func TestDistanceKnownPair(t *testing.T) {
	// Valencia city hall to the north station, roughly 370 m.
	d := Distance(39.4699, -0.3763, 39.4667, -0.3773)
	if d < 300 || d > 450 {
		t.Errorf("expected ~370m, got %.1f", d)
	}
}

func TestDistanceZero(t *testing.T) {
	if d := Distance(39.5, -0.4, 39.5, -0.4); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestCumDistancesMonotonic(t *testing.T) {
	pts := []gtfs.ShapePoint{
		{Lat: 39.40, Lon: -0.40, Sequence: 0},
		{Lat: 39.41, Lon: -0.40, Sequence: 1},
		{Lat: 39.42, Lon: -0.40, Sequence: 2},
	}
	cum := CumDistances(pts)
	if len(cum) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(cum))
	}
	if cum[0] != 0 {
		t.Errorf("first cumulative distance must be 0, got %f", cum[0])
	}
	for i := 1; i < len(cum); i++ {
		if cum[i] <= cum[i-1] {
			t.Errorf("cumulative distances not increasing at %d: %f <= %f", i, cum[i], cum[i-1])
		}
	}
	// 0.01 degrees of latitude is ~1111 m.
	if cum[1] < 1000 || cum[1] > 1250 {
		t.Errorf("expected ~1111m per step, got %f", cum[1])
	}
}

func TestCumDistancesProvided(t *testing.T) {
	pts := []gtfs.ShapePoint{
		{Lat: 1, Lon: 1, DistTraveled: 10},
		{Lat: 2, Lon: 2, DistTraveled: 5}, // regressing value gets clamped
		{Lat: 3, Lon: 3, DistTraveled: 30},
	}
	cum := CumDistances(pts)
	if cum[0] != 10 || cum[1] != 10 || cum[2] != 30 {
		t.Errorf("expected [10 10 30], got %v", cum)
	}
}

func TestProjectOntoShapeMidpoint(t *testing.T) {
	// Straight north-south line; project a point just east of the middle.
	pts := []gtfs.ShapePoint{
		{Lat: 39.40, Lon: -0.40},
		{Lat: 39.42, Lon: -0.40},
	}
	cum := CumDistances(pts)
	along, offset := ProjectOntoShape(pts, cum, 39.41, -0.399)
	total := cum[1]
	if math.Abs(along-total/2) > total*0.05 {
		t.Errorf("expected along ~%f, got %f", total/2, along)
	}
	if offset < 50 || offset > 120 {
		t.Errorf("expected ~86m offset, got %f", offset)
	}
}

func TestProjectOntoShapeClampsToEndpoints(t *testing.T) {
	pts := []gtfs.ShapePoint{
		{Lat: 39.40, Lon: -0.40},
		{Lat: 39.42, Lon: -0.40},
	}
	cum := CumDistances(pts)
	along, _ := ProjectOntoShape(pts, cum, 39.39, -0.40) // south of the start
	if along != 0 {
		t.Errorf("expected along=0 before start, got %f", along)
	}
	along, _ = ProjectOntoShape(pts, cum, 39.43, -0.40) // north of the end
	if along != cum[1] {
		t.Errorf("expected along=%f past end, got %f", cum[1], along)
	}
}

func TestProjectOntoShapeEmpty(t *testing.T) {
	along, offset := ProjectOntoShape(nil, nil, 39.4, -0.4)
	if along != 0 || offset != 0 {
		t.Errorf("expected zeros for empty shape, got %f %f", along, offset)
	}
}

func TestBearingCardinal(t *testing.T) {
	if b := Bearing(39.40, -0.40, 39.41, -0.40); math.Abs(b) > 0.5 {
		t.Errorf("expected ~0 (north), got %f", b)
	}
	if b := Bearing(39.40, -0.40, 39.40, -0.39); math.Abs(b-90) > 0.5 {
		t.Errorf("expected ~90 (east), got %f", b)
	}
}
