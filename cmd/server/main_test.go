package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/tuning"
	"aralia.dev/internal/sim/world/terrain/resolver"
	"aralia.dev/internal/sim/world/terrain/store"
	"aralia.dev/internal/transport/ws"
)

func TestOpenLedger(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()

	if l, err := openLedger(dir, tune, true, nil); err != nil || l != nil {
		t.Fatalf("disabled by flag: l=%v err=%v", l, err)
	}

	t.Setenv("ARALIA_INDEX_BACKEND", "none")
	if l, err := openLedger(dir, tune, false, nil); err != nil || l != nil {
		t.Fatalf("disabled by env: l=%v err=%v", l, err)
	}

	t.Setenv("ARALIA_INDEX_BACKEND", "postgres")
	if _, err := openLedger(dir, tune, false, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("ARALIA_INDEX_BACKEND", "")
	l, err := openLedger(dir, tune, false, nil)
	if err != nil || l == nil {
		t.Fatalf("sqlite: l=%v err=%v", l, err)
	}
	defer l.Close()
	if matches, _ := filepath.Glob(filepath.Join(dir, "index", "ledger.db*")); len(matches) == 0 {
		t.Fatalf("ledger file not created")
	}
}

func TestMetricsHandler(t *testing.T) {
	cats, err := catalogs.Defaults()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	st, err := store.NewSubmapStore(store.Options{MaxCells: 1 << 16}, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()
	res := resolver.New(cats, st, nil)
	q := resolver.SubmapQuery{BiomeID: "plains", Dims: tuning.Defaults().Dims()}
	if _, err := res.Render(q); err != nil {
		t.Fatalf("render: %v", err)
	}

	m := &metrics{store: st, ws: ws.NewServer(res, ws.Options{}, nil)}
	rec := httptest.NewRecorder()
	m.handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`aralia_store_requests_total{result="miss"} 1`,
		"aralia_ws_connections 0",
		"aralia_ws_requests_total 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "aralia_ledger_") {
		t.Fatalf("ledger metrics without a ledger:\n%s", body)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ARALIA_TEST_BOOL", "true")
	t.Setenv("ARALIA_TEST_BAD", "maybe")
	t.Setenv("ARALIA_TEST_STR", " x ")
	if !envBool("ARALIA_TEST_BOOL", false) || envBool("ARALIA_TEST_BAD", false) || !envBool("ARALIA_TEST_UNSET", true) {
		t.Fatalf("envBool")
	}
	if envString("ARALIA_TEST_STR", "d") != "x" || envString("ARALIA_TEST_UNSET", "d") != "d" {
		t.Fatalf("envString")
	}
}
