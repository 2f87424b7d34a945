package gen

import "github.com/zyedidia/generic/mapset"

const (
	DefaultPathChance = 70
	SwampPathChance   = 30
	OceanPathChance   = 0
	ForcedPathChance  = 100
)

// PathDetails is the main road of a submap and the ring of cells around it.
// Points keeps generation order (one per row or column); Main and Adjacency
// are the membership sets used by resolution.
type PathDetails struct {
	Vertical  bool
	Points    []Point
	Main      mapset.Set[Point]
	Adjacency mapset.Set[Point]
}

func (p PathDetails) Empty() bool {
	return p.Main.Size() == 0
}

type PathParams struct {
	Dims     Dims
	Chance   int
	Starting bool
}

// PathChance is the percent chance that a submap has a main path. The
// starting-location tile always has one; an explicit biome override wins
// over the by-id defaults.
func PathChance(biomeID string, override *int, starting bool) int {
	if starting {
		return ForcedPathChance
	}
	if override != nil {
		return *override
	}
	switch biomeID {
	case "swamp":
		return SwampPathChance
	case "ocean":
		return OceanPathChance
	}
	return DefaultPathChance
}

// BuildPath generates the wandering main path. A submap without a path gets
// empty (non-nil) sets.
func BuildPath(p PathParams, hash HashFn) PathDetails {
	d := PathDetails{
		Main:      mapset.New[Point](),
		Adjacency: mapset.New[Point](),
	}
	rows, cols := p.Dims.Rows, p.Dims.Cols
	chance := p.Chance
	if p.Starting {
		chance = ForcedPathChance
	}

	if int(hash(0, 0, "mainPathExists_v4")%100) < chance {
		d.Vertical = hash(1, 1, "mainPathVertical_v4")%2 == 0
		var pts []Point

		if d.Vertical {
			cur := cols/2 + startJitter(hash(2, 2, "mainPathStartCol_v4"), cols)
			cur = clampInt(cur, 1, cols-2)
			for y := 0; y < rows; y++ {
				pts = append(pts, Point{X: cur, Y: y})
				if y < rows-1 {
					wobble := int(hash(cur, y, "wobble_v_v4")%3) - 1
					cur = clampInt(cur+wobble, 1, cols-2)
				}
			}
		} else {
			cur := rows/2 + startJitter(hash(3, 3, "mainPathStartRow_v4"), rows)
			cur = clampInt(cur, 1, rows-2)
			for x := 0; x < cols; x++ {
				pts = append(pts, Point{X: x, Y: cur})
				if x < cols-1 {
					wobble := int(hash(x, cur, "wobble_h_v4")%3) - 1
					cur = clampInt(cur+wobble, 1, rows-2)
				}
			}
		}

		if p.Starting {
			pts = centerPath(pts, d.Vertical, p.Dims)
		}

		for _, pt := range pts {
			// Grids narrower than 3 cells push the interior clamp off the edge.
			if !p.Dims.Contains(pt) {
				continue
			}
			if !d.Main.Has(pt) {
				d.Points = append(d.Points, pt)
			}
			d.Main.Put(pt)
		}

		if p.Starting && d.Main.Size() == 0 {
			c := p.Dims.Center()
			d.Points = append(d.Points, c)
			d.Main.Put(c)
		}
	}

	for _, pt := range d.Points {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				adj := Point{X: pt.X + dx, Y: pt.Y + dy}
				if p.Dims.Contains(adj) && !d.Main.Has(adj) {
					d.Adjacency.Put(adj)
				}
			}
		}
	}
	return d
}

func startJitter(h uint32, extent int) int {
	third := extent / 3
	if third == 0 {
		return 0
	}
	return int(h%uint32(third)) - extent/6
}

// centerPath shifts the whole path by one offset so it crosses the grid
// center, then clamps every point back into the grid.
func centerPath(pts []Point, vertical bool, dims Dims) []Point {
	c := dims.Center()
	offX, offY := 0, 0
	for _, pt := range pts {
		if vertical && pt.Y == c.Y {
			offX = c.X - pt.X
			break
		}
		if !vertical && pt.X == c.X {
			offY = c.Y - pt.Y
			break
		}
	}
	if offX == 0 && offY == 0 {
		return pts
	}
	out := make([]Point, len(pts))
	for i, pt := range pts {
		out[i] = Point{
			X: clampInt(pt.X+offX, 0, dims.Cols-1),
			Y: clampInt(pt.Y+offY, 0, dims.Rows-1),
		}
	}
	return out
}
