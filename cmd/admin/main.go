package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	qlog "aralia.dev/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "queries":
			queriesCmd(os.Args[2:])
			return
		case "stats":
			getCmd("stats", "/stats", os.Args[2:])
			return
		case "catalog":
			getCmd("catalog", "/v1/catalog", os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the runtime data directory layout.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

type queryFilter struct {
	Biome  string
	Type   string
	Errors bool
}

func (f queryFilter) match(e qlog.QueryEntry) bool {
	if f.Biome != "" && e.BiomeID != f.Biome {
		return false
	}
	if f.Type != "" && !strings.EqualFold(e.Type, f.Type) {
		return false
	}
	if f.Errors && e.Code == "" {
		return false
	}
	return true
}

func queriesCmd(args []string) {
	fs := flag.NewFlagSet("queries", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	biome := fs.String("biome", "", "biome_id filter")
	typ := fs.String("type", "", "message type filter (RESOLVE, VILLAGE_ENTRY, RENDER)")
	onlyErrors := fs.Bool("errors", false, "only requests answered with ERROR")
	limit := fs.Int("limit", 50, "print at most the last N matches (0: all)")
	_ = fs.Parse(args)

	recs, err := readQueries(filepath.Join(*dataDir, "queries"), queryFilter{Biome: *biome, Type: *typ, Errors: *onlyErrors})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read queries:", err)
		os.Exit(1)
	}
	if *limit > 0 && len(recs) > *limit {
		recs = recs[len(recs)-*limit:]
	}
	for _, e := range recs {
		printJSON(e)
	}
}

// readQueries reads every hourly query log under dir in file order.
func readQueries(dir string, filter queryFilter) ([]qlog.QueryEntry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "queries-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]qlog.QueryEntry, 0, 1024)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := scanQueryFile(path, func(e qlog.QueryEntry) {
			if filter.match(e) {
				out = append(out, e)
			}
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanQueryFile(path string, fn func(qlog.QueryEntry)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e qlog.QueryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		fn(e)
	}
	return sc.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
