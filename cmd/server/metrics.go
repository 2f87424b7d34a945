package main

import (
	"fmt"
	"net/http"

	"aralia.dev/internal/persistence/indexdb"
	"aralia.dev/internal/sim/world/terrain/store"
	"aralia.dev/internal/transport/ws"
)

// metrics collects the counters of the optional runtime components. Any of
// them may be nil.
type metrics struct {
	store  *store.SubmapStore
	ws     *ws.Server
	ledger *indexdb.SQLiteIndex
}

type metricsSnapshot struct {
	Store  store.Stats   `json:"store"`
	WS     ws.Stats      `json:"ws"`
	Ledger indexdb.Stats `json:"ledger"`
}

func (m *metrics) snapshot() metricsSnapshot {
	var s metricsSnapshot
	s.Store = m.store.Stats()
	if m.ws != nil {
		s.WS = m.ws.Stats()
	}
	s.Ledger = m.ledger.Stats()
	return s
}

func (m *metrics) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s := m.snapshot()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP aralia_store_requests_total Submap store lookups by result.\n")
		fmt.Fprintf(rw, "# TYPE aralia_store_requests_total counter\n")
		fmt.Fprintf(rw, "aralia_store_requests_total{result=%q} %d\n", "hit", s.Store.Hits)
		fmt.Fprintf(rw, "aralia_store_requests_total{result=%q} %d\n", "miss", s.Store.Misses)

		fmt.Fprintf(rw, "# HELP aralia_ws_connections Current websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE aralia_ws_connections gauge\n")
		fmt.Fprintf(rw, "aralia_ws_connections %d\n", s.WS.Conns)

		fmt.Fprintf(rw, "# HELP aralia_ws_requests_total Requests answered over websocket.\n")
		fmt.Fprintf(rw, "# TYPE aralia_ws_requests_total counter\n")
		fmt.Fprintf(rw, "aralia_ws_requests_total %d\n", s.WS.Served)

		if m.ledger == nil {
			return
		}
		fmt.Fprintf(rw, "# HELP aralia_ledger_queue_depth Ledger write queue depth.\n")
		fmt.Fprintf(rw, "# TYPE aralia_ledger_queue_depth gauge\n")
		fmt.Fprintf(rw, "aralia_ledger_queue_depth %d\n", s.Ledger.QueueDepth)

		fmt.Fprintf(rw, "# HELP aralia_ledger_queue_capacity Ledger write queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE aralia_ledger_queue_capacity gauge\n")
		fmt.Fprintf(rw, "aralia_ledger_queue_capacity %d\n", s.Ledger.QueueCapacity)

		fmt.Fprintf(rw, "# HELP aralia_ledger_dropped_total Ledger writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE aralia_ledger_dropped_total counter\n")
		fmt.Fprintf(rw, "aralia_ledger_dropped_total{kind=%q} %d\n", "visit", s.Ledger.DropVisitTotal)
		fmt.Fprintf(rw, "aralia_ledger_dropped_total{kind=%q} %d\n", "snapshot", s.Ledger.DropSnapshotTotal)

		fmt.Fprintf(rw, "# HELP aralia_ledger_divergences_total Submaps whose digest disagreed with the first recorded one.\n")
		fmt.Fprintf(rw, "# TYPE aralia_ledger_divergences_total counter\n")
		fmt.Fprintf(rw, "aralia_ledger_divergences_total %d\n", s.Ledger.DivergenceTotal)
	}
}
