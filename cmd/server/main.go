package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"aralia.dev/internal/logging"
	persistlog "aralia.dev/internal/persistence/log"
	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/tuning"
	"aralia.dev/internal/sim/world/terrain/resolver"
	"aralia.dev/internal/sim/world/terrain/store"
	"aralia.dev/internal/transport/observer"
	"aralia.dev/internal/transport/ws"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var (
		addr       = flag.String("addr", envString("ARALIA_ADDR", ":8080"), "http listen address")
		configDir  = flag.String("configs", envString("ARALIA_CONFIGS", "./configs"), "config directory")
		dataDir    = flag.String("data", envString("ARALIA_DATA", "./data"), "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seedFlag   = flag.String("seed", "", "world seed override (default: tuning.yaml world_seed)")
		disableDB  = flag.Bool("disable_db", false, "disable the determinism ledger")
		queryLog   = flag.Bool("query_log", envBool("ARALIA_QUERY_LOG", false), "write every answered query to <data>/queries")
	)
	flag.Parse()

	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			boot.Fatalf("load tuning: %v", err)
		}
		boot.Warnf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if s := strings.TrimSpace(*seedFlag); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			boot.Fatalf("bad -seed %q: %v", s, err)
		}
		tune.WorldSeed = seed
	}

	logger, logCloser, err := logging.New(tune.Log, *dataDir, os.Stdout)
	if err != nil {
		boot.Fatalf("logging: %v", err)
	}
	defer logCloser.Close()
	log := logger.WithField("component", "server")

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		log.Fatalf("load catalogs: %v", err)
	}
	log.WithFields(logrus.Fields{
		"biomes": len(cats.Biomes.IDs),
		"digest": cats.Biomes.Digest,
		"seed":   tune.WorldSeed,
		"submap": strconv.Itoa(tune.Submap.Rows) + "x" + strconv.Itoa(tune.Submap.Cols),
	}).Info("catalogs loaded")

	var st *store.SubmapStore
	if tune.Cache.Enabled {
		st, err = store.NewSubmapStore(store.Options{
			MaxCells:    tune.Cache.MaxCells,
			Counters:    tune.Cache.Counters,
			BufferItems: tune.Cache.BufferItems,
		}, logger)
		if err != nil {
			log.Fatalf("submap store: %v", err)
		}
		defer st.Close()
	}
	res := resolver.New(cats, st, logger)

	// Optional: determinism ledger (never read by the resolver).
	ledger, err := openLedger(*dataDir, tune, *disableDB, logger)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	if ledger != nil {
		defer ledger.Close()
		if err := ledger.UpsertCatalogs(*configDir, cats, tune); err != nil {
			log.Warnf("ledger: upsert catalogs: %v", err)
		}
	}

	wsOpts := ws.Options{WorldSeed: tune.WorldSeed, Dims: tune.Dims()}
	if ledger != nil {
		wsOpts.Ledger = ledger
	}
	if *queryLog {
		ql := persistlog.NewQueryLogger(*dataDir)
		defer ql.Close()
		wsOpts.Queries = ql
	}
	wsSrv := ws.NewServer(res, wsOpts, logger)

	ctx, cancel := signalContext()
	defer cancel()

	m := &metrics{store: st, ws: wsSrv, ledger: ledger}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", m.handler())

	obsSrv := observer.NewServer(res, observer.Options{
		WorldSeed: tune.WorldSeed,
		Dims:      tune.Dims(),
		Stats:     func() any { return m.snapshot() },
	}, logger)
	obsSrv.Routes(mux)

	if envBool("ARALIA_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Debug("pprof endpoints disabled (ARALIA_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Infof("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
