package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// Ext is the file extension used for submap snapshots.
const Ext = ".submap.zst"

// Header is written as a JSON line ahead of the gob body so tools can read it
// without decoding the whole snapshot.
type Header struct {
	Version       int    `json:"version"`
	WorldSeed     int64  `json:"world_seed"`
	CatalogDigest string `json:"catalog_digest"`
	Submaps       int    `json:"submaps"`
	CreatedUnix   int64  `json:"created_unix,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Submaps []SubmapV1 `json:"submaps"`
}

// SubmapV1 is one resolved submap. Cells index into Palette in row-major
// order; Blocked carries the passability bit of each cell.
type SubmapV1 struct {
	WorldSeed int64  `json:"world_seed"`
	ParentX   int    `json:"parent_x"`
	ParentY   int    `json:"parent_y"`
	BiomeID   string `json:"biome_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`

	Palette []string `json:"palette"`
	Cells   []uint16 `json:"cells"`
	Blocked []bool   `json:"blocked"`

	Digest string `json:"digest"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	snap.Header.Submaps = len(snap.Submaps)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// gob carries the header too; the JSON line is only for ReadHeader.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

var ErrMalformed = errors.New("malformed submap")

// Validate checks the shape of a decoded submap.
func (s SubmapV1) Validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("%w: dims %dx%d", ErrMalformed, s.Rows, s.Cols)
	}
	n := s.Rows * s.Cols
	if len(s.Cells) != n || len(s.Blocked) != n {
		return fmt.Errorf("%w: cells=%d blocked=%d want %d", ErrMalformed, len(s.Cells), len(s.Blocked), n)
	}
	for i, c := range s.Cells {
		if int(c) >= len(s.Palette) {
			return fmt.Errorf("%w: cell %d palette index %d out of range", ErrMalformed, i, c)
		}
	}
	return nil
}
