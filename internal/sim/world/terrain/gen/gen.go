// Package gen holds the pure submap generators. Every function here is a
// deterministic function of its arguments: no clocks, no global randomness,
// no shared mutable state.
package gen

import (
	"math"

	"aralia.dev/internal/sim/world/logic/mathx"
)

// Point is a cell coordinate. X is the column, Y the row.
type Point struct {
	X int
	Y int
}

// Dims bounds a submap grid.
type Dims struct {
	Rows int
	Cols int
}

func (d Dims) Valid() bool {
	return d.Rows > 0 && d.Cols > 0
}

func (d Dims) Contains(p Point) bool {
	return p.X >= 0 && p.X < d.Cols && p.Y >= 0 && p.Y < d.Rows
}

func (d Dims) Center() Point {
	return Point{X: d.Cols / 2, Y: d.Rows / 2}
}

// Cells is Rows*Cols, saturating at math.MaxInt.
func (d Dims) Cells() int {
	if !d.Valid() {
		return 0
	}
	if d.Rows > math.MaxInt/d.Cols {
		return math.MaxInt
	}
	return d.Rows * d.Cols
}

// Exceeds reports whether a valid grid holds more than limit cells.
func (d Dims) Exceeds(limit int) bool {
	if !d.Valid() {
		return false
	}
	if limit <= 0 {
		return true
	}
	return d.Rows > limit/d.Cols
}

func clampInt(v, lo, hi int) int {
	return mathx.ClampInt(v, lo, hi)
}
