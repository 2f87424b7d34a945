package resolver

import (
	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/world/terrain/gen"
	"aralia.dev/internal/sim/world/terrain/store"
)

// Layout is everything generated for one submap before per-cell resolution:
// the cave grid for automaton biomes, otherwise the path and the placed
// features.
type Layout struct {
	Query    SubmapQuery
	Biome    catalogs.Biome
	Known    bool
	SeedText string
	Starting bool

	Path     gen.PathDetails
	Features []gen.PlacedFeature
	Cave     *gen.CaveGrid
}

// Describe returns the generated layout of a submap.
func (r *Resolver) Describe(q SubmapQuery) (*Layout, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return r.layout(q), nil
}

func (r *Resolver) layout(q SubmapQuery) *Layout {
	b, known := r.cat.Biomes.Lookup(q.BiomeID)
	if !known {
		r.log.WithField("biome", q.BiomeID).Debug("unknown biome, using default features")
	}
	l := &Layout{
		Query:    q,
		Biome:    b,
		Known:    known,
		SeedText: gen.BiomeSeedText(b.ID, b.Name, known),
	}
	hash := gen.NewHashFn(q.WorldSeed, q.Parent, l.SeedText)

	if b.Kind == catalogs.CellularAutomata {
		seed := hash(0, 0, "ca_gen_seed")
		l.Cave = gen.GenerateCave(q.Dims.Cols, q.Dims.Rows, seed, b.Cave.FillProbability, b.Cave.Steps)
		return l
	}

	l.Starting = r.cat.Starting.Matches(q.BiomeID, q.Parent)
	l.Path = gen.BuildPath(gen.PathParams{
		Dims:     q.Dims,
		Chance:   gen.PathChance(b.ID, b.PathChanceOverride, l.Starting),
		Starting: l.Starting,
	}, hash)
	l.Features = gen.PlaceFeatures(q.Dims, b.Features, hash, l.Path.Main)
	return l
}

func (l *Layout) tileAt(p gen.Point) TileInfo {
	if l.Cave != nil {
		state := l.Cave.At(p.X, p.Y)
		return TileInfo{Terrain: state.String(), Impassable: state == gen.Wall}
	}

	terrain, z := TerrainDefault, zDefault
	switch {
	case l.Path.Main.Has(p):
		terrain, z = TerrainPath, zPath
	case l.Path.Adjacency.Has(p):
		terrain, z = TerrainPathAdj, zPathAdj
	}
	// Strict > keeps the earliest feature on ties.
	for _, f := range l.Features {
		if !f.Covers(p.X, p.Y) {
			continue
		}
		if fz := f.Config.Z(); fz > z {
			z = fz
			terrain = f.Config.Terrain()
		}
	}
	return TileInfo{Terrain: terrain, Impassable: impassable(terrain)}
}

func (l *Layout) layer() *store.Layer {
	dims := l.Query.Dims
	out := store.NewLayer(dims)
	for y := 0; y < dims.Rows; y++ {
		for x := 0; x < dims.Cols; x++ {
			t := l.tileAt(gen.Point{X: x, Y: y})
			out.Set(x, y, t.Terrain, t.Impassable)
		}
	}
	return out
}
