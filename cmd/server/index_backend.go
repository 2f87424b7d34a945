package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"aralia.dev/internal/persistence/indexdb"
	"aralia.dev/internal/sim/tuning"
)

// openLedger opens the determinism ledger unless it is disabled by flag,
// tuning, or ARALIA_INDEX_BACKEND=none. A nil ledger is valid.
func openLedger(dataDir string, tune tuning.Tuning, disableDB bool, log logrus.FieldLogger) (*indexdb.SQLiteIndex, error) {
	if disableDB || !tune.Ledger.Enabled {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ARALIA_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "ledger.db"), tune.Ledger.QueueSize, log)
	default:
		return nil, fmt.Errorf("unsupported ARALIA_INDEX_BACKEND: %s", backend)
	}
}
