package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"aralia.dev/internal/persistence/indexdb"
	"aralia.dev/internal/persistence/snapshot"
	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/tuning"
	"aralia.dev/internal/sim/world/terrain/gen"
	"aralia.dev/internal/sim/world/terrain/resolver"
)

func main() {
	_ = godotenv.Load()

	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "world seed (0: tuning.yaml world_seed)")

		writePath  = flag.String("write", "", "render submaps and write a snapshot to this path")
		biomes     = flag.String("biomes", "", "comma-separated biome ids for -write (default: every catalog biome)")
		radius     = flag.Int("radius", 1, "parent coordinates in [-radius,radius]^2 for -write")
		verifyPath = flag.String("verify", "", "re-render every submap in this snapshot and compare digests")
		ledgerPath = flag.String("ledger", "", "sqlite ledger to record snapshots and visits (optional)")

		ascii = flag.String("ascii", "", "print one submap as ASCII: biome id")
		px    = flag.Int("px", 0, "parent x for -ascii")
		py    = flag.Int("py", 0, "parent y for -ascii")
	)
	flag.Parse()

	if *writePath == "" && *verifyPath == "" && *ascii == "" {
		fmt.Fprintln(os.Stderr, "one of -write, -verify or -ascii is required")
		os.Exit(2)
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		fatal("load tuning", err)
	}
	if err != nil {
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.WorldSeed = *seed
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fatal("load catalogs", err)
	}
	res := resolver.New(cats, nil, log)

	var ledger *indexdb.SQLiteIndex
	if *ledgerPath != "" {
		ledger, err = indexdb.OpenSQLite(*ledgerPath, 0, log)
		if err != nil {
			fatal("open ledger", err)
		}
		defer ledger.Close()
	}

	switch {
	case *ascii != "":
		sm, err := res.Render(resolver.SubmapQuery{
			WorldSeed: tune.WorldSeed,
			Parent:    gen.Point{X: *px, Y: *py},
			BiomeID:   *ascii,
			Dims:      tune.Dims(),
		})
		if err != nil {
			fatal("render", err)
		}
		fmt.Print(sm.ASCII())
		fmt.Printf("digest=%s\n", sm.Digest())

	case *writePath != "":
		ids := cats.Biomes.IDs
		if strings.TrimSpace(*biomes) != "" {
			ids = splitList(*biomes)
		}
		snap, err := renderSnapshot(res, tune.WorldSeed, tune.Dims(), ids, *radius)
		if err != nil {
			fatal("render", err)
		}
		snap.Header.CreatedUnix = time.Now().Unix()
		if err := snapshot.WriteSnapshot(*writePath, snap); err != nil {
			fatal("write snapshot", err)
		}
		recordLedger(ledger, *writePath, snap)
		fmt.Printf("wrote %s: %d submaps, %s cells, %s\n",
			*writePath, len(snap.Submaps), humanize.Comma(int64(cellCount(snap))), fileSize(*writePath))

	case *verifyPath != "":
		snap, err := snapshot.ReadSnapshot(*verifyPath)
		if err != nil {
			fatal("read snapshot", err)
		}
		fmt.Printf("snapshot v%d seed=%d submaps=%d catalog=%s size=%s\n",
			snap.Header.Version, snap.Header.WorldSeed, len(snap.Submaps), short(snap.Header.CatalogDigest), fileSize(*verifyPath))
		if snap.Header.CatalogDigest != cats.Biomes.Digest {
			fmt.Printf("warning: catalog digest differs (snapshot=%s current=%s)\n", short(snap.Header.CatalogDigest), short(cats.Biomes.Digest))
		}
		mismatches, err := verifySnapshot(res, snap)
		if err != nil {
			fatal("verify", err)
		}
		recordLedger(ledger, *verifyPath, snap)
		for _, m := range mismatches {
			fmt.Println(m)
		}
		if len(mismatches) > 0 {
			fmt.Fprintf(os.Stderr, "verify failed: %d of %d submaps differ\n", len(mismatches), len(snap.Submaps))
			os.Exit(1)
		}
		fmt.Printf("verify ok: %d submaps reproduced\n", len(snap.Submaps))
	}
}

// renderSnapshot renders every biome at every parent in [-radius,radius]^2.
func renderSnapshot(res *resolver.Resolver, seed int64, dims gen.Dims, biomeIDs []string, radius int) (snapshot.SnapshotV1, error) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			WorldSeed:     seed,
			CatalogDigest: res.Catalogs().Biomes.Digest,
		},
	}
	if radius < 0 {
		return snap, fmt.Errorf("negative radius %d", radius)
	}
	for _, id := range biomeIDs {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				sm, err := res.RenderUncached(resolver.SubmapQuery{WorldSeed: seed, Parent: gen.Point{X: x, Y: y}, BiomeID: id, Dims: dims})
				if err != nil {
					return snap, err
				}
				snap.Submaps = append(snap.Submaps, sm.Export())
			}
		}
	}
	return snap, nil
}

// Mismatch is a snapshot submap that no longer reproduces.
type Mismatch struct {
	Index    int
	Key      string
	Recorded string
	Computed string
	FirstAt  *gen.Point
}

func (m Mismatch) String() string {
	at := ""
	if m.FirstAt != nil {
		at = fmt.Sprintf(" first_diff=(%d,%d)", m.FirstAt.X, m.FirstAt.Y)
	}
	return fmt.Sprintf("mismatch #%d %s recorded=%s computed=%s%s", m.Index, m.Key, short(m.Recorded), short(m.Computed), at)
}

// verifySnapshot re-renders each stored submap from its coordinates and
// compares it with the stored cells.
func verifySnapshot(res *resolver.Resolver, snap snapshot.SnapshotV1) ([]Mismatch, error) {
	var out []Mismatch
	for i, s := range snap.Submaps {
		stored, err := resolver.SubmapFromSnapshot(s)
		if err != nil {
			return out, fmt.Errorf("submap %d: %w", i, err)
		}
		fresh, err := res.RenderUncached(stored.Query)
		if err != nil {
			return out, fmt.Errorf("submap %d: %w", i, err)
		}
		if fresh.Digest() == stored.Digest() {
			continue
		}
		m := Mismatch{Index: i, Key: stored.Query.Key().String(), Recorded: stored.Digest(), Computed: fresh.Digest()}
	scan:
		for y := 0; y < stored.Query.Dims.Rows; y++ {
			for x := 0; x < stored.Query.Dims.Cols; x++ {
				if stored.Tile(x, y) != fresh.Tile(x, y) {
					m.FirstAt = &gen.Point{X: x, Y: y}
					break scan
				}
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func recordLedger(ledger *indexdb.SQLiteIndex, path string, snap snapshot.SnapshotV1) {
	if ledger == nil {
		return
	}
	ledger.RecordSnapshot(path, snap)
	for _, s := range snap.Submaps {
		k := resolver.SubmapQuery{
			WorldSeed: s.WorldSeed,
			Parent:    gen.Point{X: s.ParentX, Y: s.ParentY},
			BiomeID:   s.BiomeID,
			Dims:      gen.Dims{Rows: s.Rows, Cols: s.Cols},
		}.Key()
		ledger.RecordVisit(k, s.Digest)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ledger.Sync(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ledger sync:", err)
		return
	}
	if st := ledger.Stats(); st.DivergenceTotal > 0 || st.DropVisitTotal > 0 {
		fmt.Printf("ledger: divergences=%d dropped=%d\n", st.DivergenceTotal, st.DropVisitTotal)
	}
}

func cellCount(snap snapshot.SnapshotV1) int {
	n := 0
	for _, s := range snap.Submaps {
		n += len(s.Cells)
	}
	return n
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(fi.Size()))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
