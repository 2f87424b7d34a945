package gen

import (
	"strconv"
	"unicode/utf16"

	"aralia.dev/internal/sim/world/logic/mathx"
)

// DefaultSeedText is the biome seed text used when the biome is not in the
// catalog.
const DefaultSeedText = "default_seed"

// StringHash is the 31-polynomial string hash over UTF-16 code units with
// signed 32-bit wraparound, returned as |h|.
func StringHash(s string) uint32 {
	var h int32
	for _, r := range s {
		if r < 0x10000 {
			h = 31*h + int32(r)
			continue
		}
		hi, lo := utf16.EncodeRune(r)
		h = 31*h + int32(hi)
		h = 31*h + int32(lo)
	}
	return mathx.Abs32(h)
}

// SimpleHash hashes "{seed},{worldX},{worldY},{localX},{localY},{biomeSeedText},{suffix}".
// Local coordinates precede the biome text.
func SimpleHash(worldSeed int64, worldX, worldY int, biomeSeedText string, localX, localY int, suffix string) uint32 {
	buf := make([]byte, 0, 48+len(biomeSeedText)+len(suffix))
	buf = strconv.AppendInt(buf, worldSeed, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(worldX), 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(worldY), 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(localX), 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(localY), 10)
	buf = append(buf, ',')
	buf = append(buf, biomeSeedText...)
	buf = append(buf, ',')
	buf = append(buf, suffix...)
	return StringHash(string(buf))
}

// HashFn is SimpleHash bound to one submap (seed, parent tile, biome).
type HashFn func(localX, localY int, suffix string) uint32

func NewHashFn(worldSeed int64, parent Point, biomeSeedText string) HashFn {
	return func(localX, localY int, suffix string) uint32 {
		return SimpleHash(worldSeed, parent.X, parent.Y, biomeSeedText, localX, localY, suffix)
	}
}

// BiomeSeedText returns id+name for catalogued biomes and DefaultSeedText
// otherwise.
func BiomeSeedText(id, name string, known bool) string {
	if !known {
		return DefaultSeedText
	}
	return id + name
}

// NewSeededRandom returns a stream of values in [0,1). Draw i hashes (i, i)
// under label. Landmark and encounter generators share this stream, so its
// arithmetic is fixed.
func NewSeededRandom(worldSeed int64, parent Point, biomeSeedText, label string) func() float64 {
	hash := NewHashFn(worldSeed, parent, biomeSeedText)
	counter := 0
	return func() float64 {
		h := hash(counter, counter, label)
		counter++
		return float64(h%100000) / 100000
	}
}
