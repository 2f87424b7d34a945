package gen

import (
	"testing"

	"github.com/zyedidia/generic/mapset"
)

func forestFeatures() []FeatureConfig {
	return []FeatureConfig{
		{ID: "dense_forest", NumSeeds: [2]int{2, 5}, Size: [2]int{2, 4}, Shape: Circular, ZOffset: 0.3},
		{ID: "clearing", NumSeeds: [2]int{0, 2}, Size: [2]int{1, 2}, Shape: Rectangular, ZOffset: 0.6, GeneratesTerrain: "grass"},
		{ID: "pond", NumSeeds: [2]int{0, 1}, Size: [2]int{1, 2}, Shape: Circular, ZOffset: 0.7, GeneratesTerrain: "water"},
	}
}

func TestParseShape(t *testing.T) {
	cases := map[string]Shape{"": Circular, "circular": Circular, "Rectangular": Rectangular, " rectangular ": Rectangular}
	for in, want := range cases {
		got, err := ParseShape(in)
		if err != nil || got != want {
			t.Fatalf("ParseShape(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseShape("hexagonal"); err == nil {
		t.Fatalf("expected error for unknown shape")
	}
}

func TestFeatureConfig_Defaults(t *testing.T) {
	c := FeatureConfig{ID: "rocks"}
	if c.Z() != DefaultZOffset {
		t.Fatalf("Z()=%v want %v", c.Z(), DefaultZOffset)
	}
	if c.Terrain() != "rocks" {
		t.Fatalf("Terrain()=%q want feature id", c.Terrain())
	}
	c.GeneratesTerrain = "water"
	if c.Terrain() != "water" {
		t.Fatalf("Terrain()=%q want water", c.Terrain())
	}
}

func TestPlacedFeature_Covers(t *testing.T) {
	rect := PlacedFeature{X: 5, Y: 5, ActualSize: 2, Config: FeatureConfig{Shape: Rectangular}}
	circ := PlacedFeature{X: 5, Y: 5, ActualSize: 2, Config: FeatureConfig{Shape: Circular}}

	if !rect.Covers(7, 7) {
		t.Fatalf("rectangle should cover its corner")
	}
	if circ.Covers(7, 7) {
		t.Fatalf("circle of radius 2 must not cover (2,2) offset")
	}
	if !circ.Covers(7, 5) || !circ.Covers(5, 3) {
		t.Fatalf("circle should cover axis points at its radius")
	}
	if rect.Covers(8, 5) || circ.Covers(8, 5) {
		t.Fatalf("shapes must not cover beyond their size")
	}

	cells := circ.Cells(Dims{Rows: 6, Cols: 6})
	for _, c := range cells {
		if c.X > 5 || c.Y > 5 {
			t.Fatalf("Cells returned out-of-bounds %v", c)
		}
	}
	// Quarter of a radius-2 disc: offsets (0,0) (0,-1) (0,-2) (-1,0) (-1,-1) (-2,0).
	if len(cells) != 6 {
		t.Fatalf("clipped disc has %d cells, want 6", len(cells))
	}
}

func TestPlaceFeatures_CountsWithinRangeWithoutPath(t *testing.T) {
	dims := Dims{Rows: 20, Cols: 30}
	cfgs := forestFeatures()
	minTotal, maxTotal := 0, 0
	for _, c := range cfgs {
		minTotal += c.NumSeeds[0]
		maxTotal += c.NumSeeds[1]
	}
	for wx := 0; wx < 20; wx++ {
		hash := NewHashFn(11, Point{X: wx, Y: 4}, "forestForest")
		placed := PlaceFeatures(dims, cfgs, hash, mapset.New[Point]())
		if len(placed) < minTotal || len(placed) > maxTotal {
			t.Fatalf("placed %d features, want [%d,%d]", len(placed), minTotal, maxTotal)
		}
		last := -1
		for _, f := range placed {
			if !dims.Contains(Point{X: f.X, Y: f.Y}) {
				t.Fatalf("feature origin outside grid: %+v", f)
			}
			idx := configIndex(cfgs, f.Config.ID)
			if idx < last {
				t.Fatalf("features out of config order")
			}
			last = idx
			if f.ActualSize < f.Config.Size[0] || f.ActualSize > f.Config.Size[1] {
				t.Fatalf("size %d outside %v", f.ActualSize, f.Config.Size)
			}
		}
	}
}

func configIndex(cfgs []FeatureConfig, id string) int {
	for i, c := range cfgs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func TestPlaceFeatures_NeverCoverPath(t *testing.T) {
	dims := Dims{Rows: 20, Cols: 30}
	cfgs := forestFeatures()
	for wx := 0; wx < 15; wx++ {
		for wy := 0; wy < 15; wy++ {
			hash := NewHashFn(2024, Point{X: wx, Y: wy}, "forestForest")
			path := BuildPath(PathParams{Dims: dims, Chance: 100}, hash)
			for _, f := range PlaceFeatures(dims, cfgs, hash, path.Main) {
				for _, c := range f.Cells(dims) {
					if path.Main.Has(c) {
						t.Fatalf("feature %s at %d,%d covers path cell %v", f.Config.ID, f.X, f.Y, c)
					}
				}
			}
		}
	}
}

func TestPlaceFeatures_Deterministic(t *testing.T) {
	dims := Dims{Rows: 20, Cols: 30}
	hash := NewHashFn(5, Point{X: 1, Y: 1}, "forestForest")
	path := BuildPath(PathParams{Dims: dims, Chance: 70}, hash)
	a := PlaceFeatures(dims, forestFeatures(), hash, path.Main)
	b := PlaceFeatures(dims, forestFeatures(), hash, path.Main)
	if len(a) != len(b) {
		t.Fatalf("length differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].X != b[i].X || a[i].Y != b[i].Y || a[i].ActualSize != b[i].ActualSize || a[i].Config.ID != b[i].Config.ID {
			t.Fatalf("feature %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestPlaceFeatures_SkipsInvertedRanges(t *testing.T) {
	cfgs := []FeatureConfig{{ID: "broken", NumSeeds: [2]int{3, 1}, Size: [2]int{1, 1}}}
	got := PlaceFeatures(Dims{Rows: 10, Cols: 10}, cfgs, NewHashFn(1, Point{}, "x"), mapset.New[Point]())
	if len(got) != 0 {
		t.Fatalf("inverted seed range placed %d features", len(got))
	}
}
