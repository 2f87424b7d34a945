package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"aralia.dev/internal/persistence/snapshot"
	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/tuning"
	"aralia.dev/internal/sim/world/terrain/store"
)

// SQLiteIndex is the determinism ledger: the first digest ever computed for
// each submap key, plus every later disagreement with it. Writes are queued
// to a single goroutine and dropped when the queue is full.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	// mu is held for reading around every send on ch and for writing while
	// ch is closed.
	mu sync.RWMutex

	closed atomic.Bool

	dropVisit    atomic.Uint64
	dropSnapshot atomic.Uint64
	divergences  atomic.Uint64
}

type reqKind int

const (
	reqVisit reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	visit    visitRow
	snapshot snapshotRow
	done     chan struct{}
}

type visitRow struct {
	Key    store.Key
	Digest string
	SeenAt string
}

type snapshotRow struct {
	Path          string
	WorldSeed     int64
	CatalogDigest string
	Submaps       int
	RecordedAt    string
}

// Divergence is a digest that disagreed with the first one recorded for the
// same submap.
type Divergence struct {
	Key      store.Key
	Recorded string
	Computed string
	SeenAt   string
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropVisitTotal    uint64 `json:"drop_visit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DivergenceTotal   uint64 `json:"divergence_total"`
}

const defaultQueueSize = 1024

func OpenSQLite(path string, queueSize int, log logrus.FieldLogger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &SQLiteIndex{
		db:  db,
		log: log.WithField("component", "ledger"),
		ch:  make(chan req, queueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS submaps (
			world_seed INTEGER NOT NULL,
			parent_x INTEGER NOT NULL,
			parent_y INTEGER NOT NULL,
			biome_id TEXT NOT NULL,
			n_rows INTEGER NOT NULL,
			n_cols INTEGER NOT NULL,
			digest TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			visits INTEGER NOT NULL,
			PRIMARY KEY (world_seed, parent_x, parent_y, biome_id, n_rows, n_cols)
		);`,
		`CREATE TABLE IF NOT EXISTS divergences (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world_seed INTEGER NOT NULL,
			parent_x INTEGER NOT NULL,
			parent_y INTEGER NOT NULL,
			biome_id TEXT NOT NULL,
			n_rows INTEGER NOT NULL,
			n_cols INTEGER NOT NULL,
			recorded_digest TEXT NOT NULL,
			computed_digest TEXT NOT NULL,
			seen_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_divergences_seed ON divergences(world_seed, parent_x, parent_y);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world_seed INTEGER NOT NULL,
			catalog_digest TEXT NOT NULL,
			submaps INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordVisit queues the digest computed for a submap.
func (s *SQLiteIndex) RecordVisit(k store.Key, digest string) {
	if s == nil {
		return
	}
	r := visitRow{Key: k, Digest: digest, SeenAt: time.Now().UTC().Format(time.RFC3339Nano)}
	if !s.tryEnqueue(req{kind: reqVisit, visit: r}) {
		s.dropVisit.Add(1)
	}
}

// tryEnqueue queues r without blocking. It reports false only when the queue
// is full; requests after Close are ignored.
func (s *SQLiteIndex) tryEnqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Path:          path,
		WorldSeed:     snap.Header.WorldSeed,
		CatalogDigest: snap.Header.CatalogDigest,
		Submaps:       len(snap.Submaps),
		RecordedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !s.tryEnqueue(req{kind: reqSnapshot, snapshot: r}) {
		s.dropSnapshot.Add(1)
	}
}

// Sync blocks until every request queued before it has been committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqSync, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LookupDigest returns the first digest recorded for k.
func (s *SQLiteIndex) LookupDigest(ctx context.Context, k store.Key) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx,
		`SELECT digest FROM submaps WHERE world_seed=? AND parent_x=? AND parent_y=? AND biome_id=? AND n_rows=? AND n_cols=?`,
		k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols,
	).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}

func (s *SQLiteIndex) Visits(ctx context.Context, k store.Key) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT visits FROM submaps WHERE world_seed=? AND parent_x=? AND parent_y=? AND biome_id=? AND n_rows=? AND n_cols=?`,
		k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *SQLiteIndex) Divergences(ctx context.Context) ([]Divergence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT world_seed,parent_x,parent_y,biome_id,n_rows,n_cols,recorded_digest,computed_digest,seen_at FROM divergences ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Divergence
	for rows.Next() {
		var d Divergence
		if err := rows.Scan(&d.Key.WorldSeed, &d.Key.Parent.X, &d.Key.Parent.Y, &d.Key.BiomeID,
			&d.Key.Dims.Rows, &d.Key.Dims.Cols, &d.Recorded, &d.Computed, &d.SeenAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropVisitTotal:    s.dropVisit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DivergenceTotal:   s.divergences.Load(),
	}
}

// UpsertCatalogs stores the biome catalog and the applied tuning so a ledger
// can be matched to the configuration that produced it.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cats.Summary()); len(b) > 0 {
		rows = append(rows, kv{name: "biomes", digest: cats.Biomes.Digest, json: b})
	}
	if configDir != "" {
		if raw, err := os.ReadFile(filepath.Join(configDir, catalogs.BiomesFile)); err == nil {
			b, _ := json.Marshal(string(raw))
			rows = append(rows, kv{name: "biomes_yaml", digest: cats.Biomes.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the digest stored under name by UpsertCatalogs.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	return d, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	selectDigest, _ := s.db.Prepare(`SELECT digest FROM submaps WHERE world_seed=? AND parent_x=? AND parent_y=? AND biome_id=? AND n_rows=? AND n_cols=?`)
	insertSubmap, _ := s.db.Prepare(`INSERT INTO submaps(world_seed,parent_x,parent_y,biome_id,n_rows,n_cols,digest,first_seen,last_seen,visits) VALUES(?,?,?,?,?,?,?,?,?,1)`)
	touchSubmap, _ := s.db.Prepare(`UPDATE submaps SET visits=visits+1, last_seen=? WHERE world_seed=? AND parent_x=? AND parent_y=? AND biome_id=? AND n_rows=? AND n_cols=?`)
	insertDivergence, _ := s.db.Prepare(`INSERT INTO divergences(world_seed,parent_x,parent_y,biome_id,n_rows,n_cols,recorded_digest,computed_digest,seen_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world_seed,catalog_digest,submaps,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{selectDigest, insertSubmap, touchSubmap, insertDivergence, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("begin ledger tx")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.WithError(err).Warn("commit ledger tx")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	handle := func(r req) {
		if r.kind == reqSync {
			commit()
			close(r.done)
			return
		}
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqVisit:
			if selectDigest == nil || insertSubmap == nil || touchSubmap == nil || insertDivergence == nil {
				return
			}
			v := r.visit
			k := v.Key
			var recorded string
			err := tx.Stmt(selectDigest).QueryRow(k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols).Scan(&recorded)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				_, err = tx.Stmt(insertSubmap).Exec(k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols, v.Digest, v.SeenAt, v.SeenAt)
			case err != nil:
			case recorded == v.Digest:
				_, err = tx.Stmt(touchSubmap).Exec(v.SeenAt, k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols)
			default:
				s.divergences.Add(1)
				s.log.WithFields(logrus.Fields{
					"key":      k.String(),
					"recorded": recorded,
					"computed": v.Digest,
				}).Error("submap digest diverged from ledger")
				_, err = tx.Stmt(insertDivergence).Exec(k.WorldSeed, k.Parent.X, k.Parent.Y, k.BiomeID, k.Dims.Rows, k.Dims.Cols, recorded, v.Digest, v.SeenAt)
			}
			if err != nil {
				s.log.WithError(err).Warn("ledger visit write")
				rollback()
				return
			}
			opCount++

		case reqSnapshot:
			if insertSnapshot == nil {
				return
			}
			sn := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(sn.Path, sn.WorldSeed, sn.CatalogDigest, sn.Submaps, sn.RecordedAt); err != nil {
				rollback()
				return
			}
			opCount++
		}
		flushIfNeeded()
	}

	// Idle transactions are committed on a timer so readers sharing the
	// single connection are not starved.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-ticker.C:
			commit()
		}
	}
}
