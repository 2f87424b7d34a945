package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type submapRow struct {
	WorldSeed int64  `json:"world_seed"`
	ParentX   int    `json:"parent_x"`
	ParentY   int    `json:"parent_y"`
	BiomeID   string `json:"biome_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	Digest    string `json:"digest"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	Visits    int    `json:"visits"`
}

type divergenceRow struct {
	ID        int64  `json:"id"`
	WorldSeed int64  `json:"world_seed"`
	ParentX   int    `json:"parent_x"`
	ParentY   int    `json:"parent_y"`
	BiomeID   string `json:"biome_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	Recorded  string `json:"recorded_digest"`
	Computed  string `json:"computed_digest"`
	SeenAt    string `json:"seen_at"`
}

type snapshotRow struct {
	Path          string `json:"path"`
	WorldSeed     int64  `json:"world_seed"`
	CatalogDigest string `json:"catalog_digest"`
	Submaps       int    `json:"submaps"`
	RecordedAt    string `json:"recorded_at"`
}

type catalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite ledger path (default: <data>/index/ledger.db)")
	limit := fs.Int("limit", 20, "result limit")
	biome := fs.String("biome", "", "biome_id filter (submaps, divergences)")
	_ = fs.Parse(args)

	q := "submaps"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "ledger.db")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "ledger:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	rows, err := queryLedger(db, q, strings.TrimSpace(*biome), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// queryLedger runs one of the named read-only ledger queries.
func queryLedger(db *sql.DB, name, biome string, limit int) ([]any, error) {
	var out []any
	switch name {
	case "submaps":
		rows, err := db.Query(`SELECT world_seed,parent_x,parent_y,biome_id,n_rows,n_cols,digest,first_seen,last_seen,visits
			FROM submaps WHERE (?='' OR biome_id=?) ORDER BY visits DESC, last_seen DESC LIMIT ?`, biome, biome, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r submapRow
			if err := rows.Scan(&r.WorldSeed, &r.ParentX, &r.ParentY, &r.BiomeID, &r.Rows, &r.Cols, &r.Digest, &r.FirstSeen, &r.LastSeen, &r.Visits); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "divergences":
		rows, err := db.Query(`SELECT id,world_seed,parent_x,parent_y,biome_id,n_rows,n_cols,recorded_digest,computed_digest,seen_at
			FROM divergences WHERE (?='' OR biome_id=?) ORDER BY id DESC LIMIT ?`, biome, biome, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r divergenceRow
			if err := rows.Scan(&r.ID, &r.WorldSeed, &r.ParentX, &r.ParentY, &r.BiomeID, &r.Rows, &r.Cols, &r.Recorded, &r.Computed, &r.SeenAt); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "snapshots":
		rows, err := db.Query(`SELECT path,world_seed,catalog_digest,submaps,recorded_at FROM snapshots ORDER BY recorded_at DESC LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r snapshotRow
			if err := rows.Scan(&r.Path, &r.WorldSeed, &r.CatalogDigest, &r.Submaps, &r.RecordedAt); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r catalogRow
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	default:
		return nil, fmt.Errorf("unknown query %q (submaps, divergences, snapshots, catalogs)", name)
	}
}
