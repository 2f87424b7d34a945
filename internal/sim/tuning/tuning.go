package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"aralia.dev/internal/sim/world/terrain/gen"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`
	WorldSeed       int64  `yaml:"world_seed"`

	Submap SubmapTuning `yaml:"submap"`
	Cache  CacheTuning  `yaml:"cache"`
	Ledger LedgerTuning `yaml:"ledger"`
	Log    LogTuning    `yaml:"log"`
}

type SubmapTuning struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// CacheTuning bounds the submap memo store. MaxCells is the total number of
// cached cells across all layers.
type CacheTuning struct {
	Enabled     bool  `yaml:"enabled"`
	MaxCells    int64 `yaml:"max_cells"`
	Counters    int64 `yaml:"counters"`
	BufferItems int64 `yaml:"buffer_items"`
}

type LedgerTuning struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

type LogTuning struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		WorldSeed:       1,
		Submap:          SubmapTuning{Rows: 20, Cols: 30},
		Cache:           CacheTuning{Enabled: true, MaxCells: 1 << 20, Counters: 1 << 16, BufferItems: 64},
		Ledger:          LedgerTuning{Enabled: true, QueueSize: 1024},
		Log:             LogTuning{Level: "info", MaxSizeMB: 64, MaxBackups: 5, MaxAgeDays: 14},
	}
}

// Load reads tuning.yaml over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	t.Log.Level = strings.ToLower(strings.TrimSpace(t.Log.Level))
	if t.Log.Level == "" {
		t.Log.Level = "info"
	}
	if t.Cache.Counters <= 0 {
		// ristretto wants roughly 10x the expected number of entries.
		t.Cache.Counters = 10 * (t.Cache.MaxCells / int64(max(t.Submap.Rows*t.Submap.Cols, 1)))
		if t.Cache.Counters < 1024 {
			t.Cache.Counters = 1024
		}
	}
	if t.Cache.BufferItems <= 0 {
		t.Cache.BufferItems = 64
	}
	if t.Ledger.QueueSize <= 0 {
		t.Ledger.QueueSize = 1024
	}
}

func (t Tuning) Validate() error {
	if t.Submap.Rows <= 0 || t.Submap.Cols <= 0 {
		return fmt.Errorf("submap rows/cols must be > 0 (got %dx%d)", t.Submap.Rows, t.Submap.Cols)
	}
	if t.Cache.Enabled && t.Cache.MaxCells <= 0 {
		return fmt.Errorf("cache.max_cells must be > 0 when the cache is enabled")
	}
	if _, err := logrus.ParseLevel(t.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if t.Log.MaxSizeMB < 0 || t.Log.MaxBackups < 0 || t.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be >= 0")
	}
	return nil
}

func (t Tuning) Dims() gen.Dims {
	return gen.Dims{Rows: t.Submap.Rows, Cols: t.Submap.Cols}
}
