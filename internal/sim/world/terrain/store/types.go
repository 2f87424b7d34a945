package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"aralia.dev/internal/sim/world/terrain/gen"
)

// Key identifies one submap. Two queries with equal keys always produce the
// same layer.
type Key struct {
	WorldSeed int64
	Parent    gen.Point
	BiomeID   string
	Dims      gen.Dims
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%d,%d|%s|%dx%d", k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols)
}

// Layer is the fully resolved terrain of one submap. Terrain names are
// palette-indexed in row-major order. A layer must not be modified once it
// has been handed to a SubmapStore.
type Layer struct {
	Dims    gen.Dims
	Palette []string
	Cells   []uint16
	Blocked []bool

	index  map[string]uint16
	dirty  bool
	hashed bool
	hash   [32]byte
}

func NewLayer(dims gen.Dims) *Layer {
	n := dims.Cells()
	return &Layer{
		Dims:    dims,
		Cells:   make([]uint16, n),
		Blocked: make([]bool, n),
		index:   map[string]uint16{},
	}
}

func (l *Layer) offset(x, y int) int {
	return x + y*l.Dims.Cols
}

func (l *Layer) Get(x, y int) (terrain string, blocked bool) {
	i := l.offset(x, y)
	return l.Palette[l.Cells[i]], l.Blocked[i]
}

func (l *Layer) Set(x, y int, terrain string, blocked bool) {
	id, ok := l.index[terrain]
	if !ok {
		if l.index == nil {
			l.rebuildIndex()
			id, ok = l.index[terrain]
		}
		if !ok {
			id = uint16(len(l.Palette))
			l.Palette = append(l.Palette, terrain)
			l.index[terrain] = id
		}
	}
	i := l.offset(x, y)
	l.Cells[i] = id
	l.Blocked[i] = blocked
	l.dirty = true
}

func (l *Layer) rebuildIndex() {
	l.index = make(map[string]uint16, len(l.Palette))
	for i, t := range l.Palette {
		l.index[t] = uint16(i)
	}
}

// Digest is sha256 over the dimensions and then every cell in row-major
// order: the terrain name, a zero byte, then the passability bit. It does not
// depend on palette order.
func (l *Layer) Digest() [32]byte {
	if l.dirty || !l.hashed {
		h := sha256.New()
		var tmp [8]byte
		binary.LittleEndian.PutUint32(tmp[0:4], uint32(l.Dims.Rows))
		binary.LittleEndian.PutUint32(tmp[4:8], uint32(l.Dims.Cols))
		h.Write(tmp[:])
		for i, c := range l.Cells {
			h.Write([]byte(l.Palette[c]))
			b := byte(0)
			if l.Blocked[i] {
				b = 1
			}
			h.Write([]byte{0, b})
		}
		copy(l.hash[:], h.Sum(nil))
		l.dirty = false
		l.hashed = true
	}
	return l.hash
}

// Cost is the ristretto cost of a layer.
func (l *Layer) Cost() int64 {
	return int64(len(l.Cells))
}
