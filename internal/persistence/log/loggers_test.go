package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func readJSONL(t *testing.T, path string) []QueryEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []QueryEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e QueryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestQueryLogger_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewQueryLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteQuery(QueryEntry{Type: "RESOLVE", BiomeID: "plains", Result: "path"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.WriteQuery(QueryEntry{Type: "RENDER", BiomeID: "cave"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteQuery(QueryEntry{Type: "VILLAGE_ENTRY", BiomeID: "plains"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readJSONL(t, filepath.Join(dir, "queries", "queries-2026-03-01-10.jsonl.zst"))
	if len(first) != 2 || first[0].Result != "path" || first[1].Type != "RENDER" {
		t.Fatalf("first hour=%+v", first)
	}
	if first[0].Time != "2026-03-01T10:59:00Z" {
		t.Fatalf("time=%q", first[0].Time)
	}
	second := readJSONL(t, filepath.Join(dir, "queries", "queries-2026-03-01-11.jsonl.zst"))
	if len(second) != 1 || second[0].Type != "VILLAGE_ENTRY" {
		t.Fatalf("second hour=%+v", second)
	}
}
