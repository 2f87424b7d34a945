// Package resolver answers "what terrain is at this local coordinate" for any
// submap, recomputing everything from the world seed and coordinates.
package resolver

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/world/terrain/gen"
	"aralia.dev/internal/sim/world/terrain/store"
)

const (
	TerrainDefault     = "default"
	TerrainPath        = "path"
	TerrainPathAdj     = "path_adj"
	TerrainWall        = "wall"
	TerrainFloor       = "floor"
	TerrainWater       = "water"
	TerrainVillageArea = "village_area"
)

const (
	zDefault = 0.0
	zPathAdj = 0.5
	zPath    = 1.0
)

var (
	ErrContractViolation = errors.New("contract violation")
	ErrInvalidDimensions = fmt.Errorf("%w: submap dimensions must be positive", ErrContractViolation)
	ErrOutOfBounds       = fmt.Errorf("%w: local coordinate outside submap", ErrContractViolation)
)

// SubmapQuery names one submap.
type SubmapQuery struct {
	WorldSeed int64
	Parent    gen.Point
	BiomeID   string
	Dims      gen.Dims
}

// Key is the memo and ledger key of the submap.
func (q SubmapQuery) Key() store.Key {
	return store.Key{WorldSeed: q.WorldSeed, Parent: q.Parent, BiomeID: q.BiomeID, Dims: q.Dims}
}

func (q SubmapQuery) validate() error {
	if !q.Dims.Valid() {
		return fmt.Errorf("%w (got %dx%d)", ErrInvalidDimensions, q.Dims.Rows, q.Dims.Cols)
	}
	return nil
}

// TileQuery names one cell of a submap.
type TileQuery struct {
	SubmapQuery
	Local gen.Point
}

func (q TileQuery) validate() error {
	if err := q.SubmapQuery.validate(); err != nil {
		return err
	}
	if !q.Dims.Contains(q.Local) {
		return fmt.Errorf("%w (%d,%d not in %dx%d)", ErrOutOfBounds, q.Local.X, q.Local.Y, q.Dims.Cols, q.Dims.Rows)
	}
	return nil
}

type TileInfo struct {
	Terrain    string `json:"terrain"`
	Impassable bool   `json:"impassable"`
}

func impassable(terrain string) bool {
	return terrain == TerrainWater || terrain == TerrainVillageArea
}

// Resolver is safe for concurrent use. The store is optional.
type Resolver struct {
	cat   *catalogs.Catalogs
	store *store.SubmapStore
	log   logrus.FieldLogger
}

func New(cat *catalogs.Catalogs, st *store.SubmapStore, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{cat: cat, store: st, log: log.WithField("component", "resolver")}
}

func (r *Resolver) Catalogs() *catalogs.Catalogs { return r.cat }

// Resolve returns the terrain at q.Local. A memoized layer answers directly.
// On a miss, standard biomes resolve the one cell from the path and the
// features; cave grids are generated whole and memoized, since the automaton
// cannot answer a single cell.
func (r *Resolver) Resolve(q TileQuery) (TileInfo, error) {
	if err := q.validate(); err != nil {
		return TileInfo{}, err
	}
	return r.tiles(q.SubmapQuery)(q.Local), nil
}

// ResolveUncached computes the tile from scratch without touching the store.
func (r *Resolver) ResolveUncached(q TileQuery) (TileInfo, error) {
	if err := q.validate(); err != nil {
		return TileInfo{}, err
	}
	return r.layout(q.SubmapQuery).tileAt(q.Local), nil
}

// tiles returns a cell lookup for one submap, consulting the store once.
func (r *Resolver) tiles(q SubmapQuery) func(gen.Point) TileInfo {
	k := q.Key()
	if l, ok := r.store.Get(k); ok {
		return layerTiles(l)
	}
	lay := r.layout(q)
	if lay.Cave == nil {
		return lay.tileAt
	}
	l := lay.layer()
	r.store.Put(k, l)
	return layerTiles(l)
}

func layerTiles(l *store.Layer) func(gen.Point) TileInfo {
	return func(p gen.Point) TileInfo {
		terrain, blocked := l.Get(p.X, p.Y)
		return TileInfo{Terrain: terrain, Impassable: blocked}
	}
}

func (r *Resolver) layer(q SubmapQuery) *store.Layer {
	return r.store.GetOrGen(q.Key(), func() *store.Layer {
		return r.layout(q).layer()
	})
}

// Random returns the seeded stream external generators (landmarks,
// encounters) draw from for this submap.
func (r *Resolver) Random(q SubmapQuery, label string) func() float64 {
	return gen.NewSeededRandom(q.WorldSeed, q.Parent, r.cat.Biomes.SeedText(q.BiomeID), label)
}
