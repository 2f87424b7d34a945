package store

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"aralia.dev/internal/sim/world/terrain/gen"
)

func testLayer() *Layer {
	l := NewLayer(gen.Dims{Rows: 2, Cols: 3})
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			l.Set(x, y, "default", false)
		}
	}
	l.Set(1, 0, "path", false)
	l.Set(2, 1, "water", true)
	return l
}

func TestLayer_SetGet(t *testing.T) {
	l := testLayer()
	if got, blocked := l.Get(2, 1); got != "water" || !blocked {
		t.Fatalf("got %q blocked=%v", got, blocked)
	}
	if got, _ := l.Get(1, 0); got != "path" {
		t.Fatalf("got %q", got)
	}
	if len(l.Palette) != 3 {
		t.Fatalf("palette=%v", l.Palette)
	}
	if l.Cost() != 6 {
		t.Fatalf("cost=%d", l.Cost())
	}
}

func TestLayer_DigestIgnoresPaletteOrder(t *testing.T) {
	a := testLayer()

	b := NewLayer(gen.Dims{Rows: 2, Cols: 3})
	b.Set(2, 1, "water", true)
	b.Set(1, 0, "path", false)
	for _, p := range []gen.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}} {
		b.Set(p.X, p.Y, "default", false)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("equal layers with different palettes should share a digest")
	}

	d := a.Digest()
	a.Set(0, 0, "default", true)
	if a.Digest() == d {
		t.Fatalf("passability change must change the digest")
	}
}

func TestLayer_DigestCoversDims(t *testing.T) {
	a := NewLayer(gen.Dims{Rows: 1, Cols: 2})
	b := NewLayer(gen.Dims{Rows: 2, Cols: 1})
	for _, l := range []*Layer{a, b} {
		for i := range l.Cells {
			l.Set(i%l.Dims.Cols, i/l.Dims.Cols, "floor", false)
		}
	}
	if a.Digest() == b.Digest() {
		t.Fatalf("transposed layers should not share a digest")
	}
}

func TestKeyString(t *testing.T) {
	k := Key{WorldSeed: 9, Parent: gen.Point{X: -1, Y: 4}, BiomeID: "swamp", Dims: gen.Dims{Rows: 20, Cols: 30}}
	if got := k.String(); got != "9|-1,4|swamp|20x30" {
		t.Fatalf("key=%q", got)
	}
}

func TestSubmapStore_Memoizes(t *testing.T) {
	s, err := NewSubmapStore(Options{MaxCells: 1 << 12}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	k := Key{WorldSeed: 1, BiomeID: "plains", Dims: gen.Dims{Rows: 2, Cols: 3}}
	var calls int
	generate := func() *Layer {
		calls++
		return testLayer()
	}
	first := s.GetOrGen(k, generate)
	s.Wait()
	second := s.GetOrGen(k, generate)
	if calls != 1 || first != second {
		t.Fatalf("calls=%d same=%v", calls, first == second)
	}
	if st := s.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats=%+v", st)
	}

	s.Forget(k)
	s.Wait()
	_ = s.GetOrGen(k, generate)
	if calls != 2 {
		t.Fatalf("calls after forget=%d", calls)
	}
}

func TestSubmapStore_PutVisibleToGet(t *testing.T) {
	s, err := NewSubmapStore(Options{MaxCells: 1 << 12}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	k := Key{WorldSeed: 3, BiomeID: "cave", Dims: gen.Dims{Rows: 2, Cols: 3}}
	if _, ok := s.Get(k); ok {
		t.Fatalf("empty store hit")
	}
	l := testLayer()
	s.Put(k, l)
	got, ok := s.Get(k)
	if !ok || got != l {
		t.Fatalf("put not visible: ok=%v", ok)
	}
	if st := s.Stats(); st != (Stats{Hits: 1, Misses: 1}) {
		t.Fatalf("stats=%+v", st)
	}

	var nilStore *SubmapStore
	nilStore.Put(k, l)
	if _, ok := nilStore.Get(k); ok {
		t.Fatalf("nil store hit")
	}
}

func TestSubmapStore_NilGenerates(t *testing.T) {
	var s *SubmapStore
	var calls int
	for i := 0; i < 3; i++ {
		s.GetOrGen(Key{}, func() *Layer { calls++; return testLayer() })
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	s.Wait()
	s.Close()
	if s.Stats() != (Stats{}) {
		t.Fatalf("nil store stats should be zero")
	}
}

func TestSubmapStore_Concurrent(t *testing.T) {
	s, err := NewSubmapStore(Options{MaxCells: 1 << 12}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	want := testLayer().Digest()
	var wg sync.WaitGroup
	var bad atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := Key{WorldSeed: int64(i % 4), Dims: gen.Dims{Rows: 2, Cols: 3}}
			if s.GetOrGen(k, testLayer).Digest() != want {
				bad.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if bad.Load() != 0 {
		t.Fatalf("%d goroutines saw a different layer", bad.Load())
	}
}

func TestExportImportLayerRoundTrip(t *testing.T) {
	k := Key{WorldSeed: 7, Parent: gen.Point{X: 1, Y: -2}, BiomeID: "plains", Dims: gen.Dims{Rows: 2, Cols: 3}}
	l := testLayer()
	exported := ExportLayer(k, l)
	if exported.Rows != 2 || exported.Cols != 3 || exported.ParentY != -2 {
		t.Fatalf("exported=%+v", exported)
	}

	gotKey, got, err := ImportLayer(exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if gotKey != k || got.Digest() != l.Digest() {
		t.Fatalf("round trip changed key or digest")
	}
	got.Set(0, 1, "grass", false)
	if terrain, _ := got.Get(0, 1); terrain != "grass" {
		t.Fatalf("imported layer should accept new palette entries")
	}

	exported.Blocked[0] = true
	if _, _, err := ImportLayer(exported); err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("tampered submap: err=%v", err)
	}
}
