package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// QueryEntry records one request answered by the query service.
type QueryEntry struct {
	Time      string `json:"time"`
	ConnID    string `json:"conn_id"`
	Type      string `json:"type"`
	WorldSeed int64  `json:"world_seed"`
	ParentX   int    `json:"parent_x"`
	ParentY   int    `json:"parent_y"`
	BiomeID   string `json:"biome_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
	Result    string `json:"result,omitempty"`
	Code      string `json:"code,omitempty"`
}

// QueryLogger writes one compressed JSONL entry per served query.
type QueryLogger struct{ w *JSONLZstdWriter }

func NewQueryLogger(dataDir string) *QueryLogger {
	return &QueryLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "queries"), "queries")}
}

func (l *QueryLogger) WriteQuery(e QueryEntry) error {
	if e.Time == "" {
		e.Time = l.w.now().UTC().Format(time.RFC3339Nano)
	}
	return l.w.Write(e)
}

func (l *QueryLogger) Close() error { return l.w.Close() }
