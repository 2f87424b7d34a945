package store

import (
	"encoding/hex"
	"fmt"

	snapv1 "aralia.dev/internal/persistence/snapshot"
	"aralia.dev/internal/sim/world/terrain/gen"
)

// ExportLayer converts a layer into its snapshot form.
func ExportLayer(k Key, l *Layer) snapv1.SubmapV1 {
	sum := l.Digest()
	palette := make([]string, len(l.Palette))
	copy(palette, l.Palette)
	cells := make([]uint16, len(l.Cells))
	copy(cells, l.Cells)
	blocked := make([]bool, len(l.Blocked))
	copy(blocked, l.Blocked)
	return snapv1.SubmapV1{
		WorldSeed: k.WorldSeed,
		ParentX:   k.Parent.X,
		ParentY:   k.Parent.Y,
		BiomeID:   k.BiomeID,
		Rows:      k.Dims.Rows,
		Cols:      k.Dims.Cols,
		Palette:   palette,
		Cells:     cells,
		Blocked:   blocked,
		Digest:    hex.EncodeToString(sum[:]),
	}
}

// ImportLayer rebuilds a layer from a snapshot submap and checks that its
// recomputed digest matches the recorded one.
func ImportLayer(s snapv1.SubmapV1) (Key, *Layer, error) {
	k := Key{
		WorldSeed: s.WorldSeed,
		Parent:    gen.Point{X: s.ParentX, Y: s.ParentY},
		BiomeID:   s.BiomeID,
		Dims:      gen.Dims{Rows: s.Rows, Cols: s.Cols},
	}
	if err := s.Validate(); err != nil {
		return k, nil, err
	}
	l := &Layer{
		Dims:    k.Dims,
		Palette: append([]string(nil), s.Palette...),
		Cells:   append([]uint16(nil), s.Cells...),
		Blocked: append([]bool(nil), s.Blocked...),
	}
	l.rebuildIndex()
	sum := l.Digest()
	if got := hex.EncodeToString(sum[:]); s.Digest != "" && got != s.Digest {
		return k, nil, fmt.Errorf("submap %s digest mismatch: recorded %s computed %s", k, s.Digest, got)
	}
	return k, l, nil
}
