package resolver

import "aralia.dev/internal/sim/world/terrain/gen"

type Direction string

const (
	North Direction = "North"
	South Direction = "South"
	East  Direction = "East"
	West  Direction = "West"
)

func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return d
}

// VillageEntry reports whether a tile borders a village and which way a
// traveler moving into it is heading. EntryDirection is the side of the
// village the traveler arrives on.
type VillageEntry struct {
	Adjacent         bool      `json:"adjacent"`
	VillageDirection Direction `json:"village_direction,omitempty"`
	EntryDirection   Direction `json:"entry_direction,omitempty"`
	VillageTile      gen.Point `json:"-"`
}

var neighborOrder = []struct {
	dir    Direction
	dx, dy int
}{
	{North, 0, -1},
	{South, 0, 1},
	{East, 1, 0},
	{West, -1, 0},
}

// FindVillageEntry checks the four neighbors of q.Local, in N, S, E, W order,
// for a village_area tile. Neighbors outside the submap are skipped. The
// submap is generated at most once per call.
func (r *Resolver) FindVillageEntry(q TileQuery) (VillageEntry, error) {
	if err := q.validate(); err != nil {
		return VillageEntry{}, err
	}
	tileAt := r.tiles(q.SubmapQuery)
	for _, n := range neighborOrder {
		p := gen.Point{X: q.Local.X + n.dx, Y: q.Local.Y + n.dy}
		if !q.Dims.Contains(p) {
			continue
		}
		if tileAt(p).Terrain == TerrainVillageArea {
			return VillageEntry{
				Adjacent:         true,
				VillageDirection: n.dir,
				EntryDirection:   n.dir.Opposite(),
				VillageTile:      p,
			}, nil
		}
	}
	return VillageEntry{}, nil
}
