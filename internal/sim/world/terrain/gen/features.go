package gen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zyedidia/generic/mapset"

	"aralia.dev/internal/sim/world/logic/mathx"
)

// Shape selects the occupancy test of a seeded feature.
type Shape int

const (
	Circular Shape = iota
	Rectangular
)

func (s Shape) String() string {
	switch s {
	case Rectangular:
		return "rectangular"
	default:
		return "circular"
	}
}

// ParseShape accepts "circular", "rectangular" or "" (circular).
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "circular":
		return Circular, nil
	case "rectangular":
		return Rectangular, nil
	}
	return Circular, fmt.Errorf("unknown feature shape %q", s)
}

// DefaultZOffset applies to features that leave ZOffset unset.
const DefaultZOffset = 0.1

// FeatureConfig describes one kind of seeded feature for a biome.
type FeatureConfig struct {
	ID               string
	NumSeeds         [2]int
	Size             [2]int
	Shape            Shape
	ZOffset          float64
	GeneratesTerrain string
}

func (c FeatureConfig) Z() float64 {
	if c.ZOffset == 0 {
		return DefaultZOffset
	}
	return c.ZOffset
}

// Terrain is the terrain type a covered cell takes.
func (c FeatureConfig) Terrain() string {
	if c.GeneratesTerrain != "" {
		return c.GeneratesTerrain
	}
	return c.ID
}

// PlacedFeature is one resolved instance of a FeatureConfig.
type PlacedFeature struct {
	X          int
	Y          int
	Config     FeatureConfig
	ActualSize int
}

func (f PlacedFeature) Covers(x, y int) bool {
	dx := x - f.X
	dy := y - f.Y
	if f.Config.Shape == Rectangular {
		return mathx.AbsInt(dx) <= f.ActualSize && mathx.AbsInt(dy) <= f.ActualSize
	}
	// sqrt(dx²+dy²) <= size, compared exactly on integers.
	return dx*dx+dy*dy <= f.ActualSize*f.ActualSize
}

// Cells lists the covered cells inside dims, row-major.
func (f PlacedFeature) Cells(dims Dims) []Point {
	var out []Point
	f.eachCovered(dims, func(p Point) bool {
		out = append(out, p)
		return true
	})
	return out
}

func (f PlacedFeature) eachCovered(dims Dims, fn func(Point) bool) {
	minX := max(0, f.X-f.ActualSize)
	maxX := min(dims.Cols-1, f.X+f.ActualSize)
	minY := max(0, f.Y-f.ActualSize)
	maxY := min(dims.Rows-1, f.Y+f.ActualSize)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if f.Covers(x, y) && !fn(Point{X: x, Y: y}) {
				return
			}
		}
	}
}

// PlaceFeatures scatters each config's instances in declared order and drops
// any instance that would cover a main path cell.
func PlaceFeatures(dims Dims, configs []FeatureConfig, hash HashFn, mainPath mapset.Set[Point]) []PlacedFeature {
	var out []PlacedFeature
	for index, cfg := range configs {
		seedSpan := cfg.NumSeeds[1] - cfg.NumSeeds[0] + 1
		sizeSpan := cfg.Size[1] - cfg.Size[0] + 1
		if seedSpan <= 0 || sizeSpan <= 0 {
			continue
		}
		count := int(hash(index, 0, "feature_type_"+cfg.ID)%uint32(seedSpan)) + cfg.NumSeeds[0]

		for i := 0; i < count; i++ {
			instance := "_instance_" + strconv.Itoa(i)
			x := int(hash(index, i, "seedX_"+cfg.ID+instance) % uint32(dims.Cols))
			y := int(hash(index, i, "seedY_"+cfg.ID+instance) % uint32(dims.Rows))
			size := int(hash(index, i, "seedSize_"+cfg.ID+instance)%uint32(sizeSpan)) + cfg.Size[0]

			f := PlacedFeature{X: x, Y: y, Config: cfg, ActualSize: size}
			if mainPath.Size() > 0 && overlapsPath(f, dims, mainPath) {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

func overlapsPath(f PlacedFeature, dims Dims, mainPath mapset.Set[Point]) bool {
	hit := false
	f.eachCovered(dims, func(p Point) bool {
		if mainPath.Has(p) {
			hit = true
			return false
		}
		return true
	})
	return hit
}
