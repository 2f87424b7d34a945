package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleSubmap() SubmapV1 {
	return SubmapV1{
		WorldSeed: 7,
		ParentX:   3,
		ParentY:   -2,
		BiomeID:   "plains",
		Rows:      2,
		Cols:      3,
		Palette:   []string{"default", "path", "water"},
		Cells:     []uint16{0, 1, 0, 2, 1, 0},
		Blocked:   []bool{false, false, false, true, false, false},
		Digest:    "abc",
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "world"+Ext)
	in := SnapshotV1{
		Header:  Header{WorldSeed: 7, CatalogDigest: "deadbeef"},
		Submaps: []SubmapV1{sampleSubmap()},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Header.Version != Version || out.Header.Submaps != 1 {
		t.Fatalf("header=%+v", out.Header)
	}
	if !reflect.DeepEqual(out.Submaps, in.Submaps) {
		t.Fatalf("submaps differ:\n got %+v\nwant %+v", out.Submaps, in.Submaps)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.WorldSeed != 7 || h.CatalogDigest != "deadbeef" || h.Submaps != 1 {
		t.Fatalf("header=%+v", h)
	}
}

func TestReadSnapshot_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad"+Ext)
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ReadHeader(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSubmapValidate(t *testing.T) {
	if err := sampleSubmap().Validate(); err != nil {
		t.Fatalf("valid submap: %v", err)
	}

	short := sampleSubmap()
	short.Cells = short.Cells[:5]
	badIndex := sampleSubmap()
	badIndex.Cells[0] = 9
	noDims := sampleSubmap()
	noDims.Rows = 0

	for name, s := range map[string]SubmapV1{"short": short, "index": badIndex, "dims": noDims} {
		if err := s.Validate(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}
