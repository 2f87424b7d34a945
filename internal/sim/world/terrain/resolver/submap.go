package resolver

import (
	"encoding/hex"
	"strings"

	snapv1 "aralia.dev/internal/persistence/snapshot"
	"aralia.dev/internal/sim/world/terrain/store"
)

// Submap is every cell of one submap, resolved.
type Submap struct {
	Query SubmapQuery
	layer *store.Layer
}

// Render resolves the whole submap in row-major order.
func (r *Resolver) Render(q SubmapQuery) (*Submap, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return &Submap{Query: q, layer: r.layer(q)}, nil
}

// RenderUncached is Render without the store.
func (r *Resolver) RenderUncached(q SubmapQuery) (*Submap, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	l := r.layout(q).layer()
	_ = l.Digest()
	return &Submap{Query: q, layer: l}, nil
}

func (s *Submap) Tile(x, y int) TileInfo {
	terrain, blocked := s.layer.Get(x, y)
	return TileInfo{Terrain: terrain, Impassable: blocked}
}

// Rows returns the submap as rows of tiles.
func (s *Submap) Rows() [][]TileInfo {
	out := make([][]TileInfo, s.Query.Dims.Rows)
	for y := range out {
		out[y] = make([]TileInfo, s.Query.Dims.Cols)
		for x := range out[y] {
			out[y][x] = s.Tile(x, y)
		}
	}
	return out
}

// Digest is the hex sha256 of the resolved submap.
func (s *Submap) Digest() string {
	sum := s.layer.Digest()
	return hex.EncodeToString(sum[:])
}

func (s *Submap) Export() snapv1.SubmapV1 {
	return store.ExportLayer(s.Query.Key(), s.layer)
}

// SubmapFromSnapshot rebuilds a rendered submap from its snapshot form.
func SubmapFromSnapshot(in snapv1.SubmapV1) (*Submap, error) {
	k, l, err := store.ImportLayer(in)
	if err != nil {
		return nil, err
	}
	q := SubmapQuery{WorldSeed: k.WorldSeed, Parent: k.Parent, BiomeID: k.BiomeID, Dims: k.Dims}
	return &Submap{Query: q, layer: l}, nil
}

var glyphs = map[string]byte{
	TerrainDefault:     '.',
	TerrainPath:        '#',
	TerrainPathAdj:     ':',
	TerrainWall:        'X',
	TerrainFloor:       ' ',
	TerrainWater:       '~',
	TerrainVillageArea: 'V',
}

// ASCII draws one character per cell. Terrains without a fixed glyph use
// their first letter.
func (s *Submap) ASCII() string {
	var b strings.Builder
	for y := 0; y < s.Query.Dims.Rows; y++ {
		for x := 0; x < s.Query.Dims.Cols; x++ {
			terrain, _ := s.layer.Get(x, y)
			g, ok := glyphs[terrain]
			if !ok {
				g = '?'
				if terrain != "" {
					g = terrain[0]
				}
			}
			b.WriteByte(g)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
