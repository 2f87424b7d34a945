// Package observer serves read-only HTTP views of the resolver for tooling:
// the catalog summary and per-submap inspection.
package observer

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"aralia.dev/internal/protocol"
	"aralia.dev/internal/sim/catalogs"
	"aralia.dev/internal/sim/world/terrain/gen"
	"aralia.dev/internal/sim/world/terrain/resolver"
)

type Options struct {
	WorldSeed int64
	Dims      gen.Dims
	// MaxCells caps inspected submaps. Zero means 1<<16.
	MaxCells int
	// Stats, when set, is served under /stats.
	Stats func() any
}

type Server struct {
	res  *resolver.Resolver
	opts Options
	log  logrus.FieldLogger
}

func NewServer(res *resolver.Resolver, opts Options, log logrus.FieldLogger) *Server {
	if opts.MaxCells <= 0 {
		opts.MaxCells = 1 << 16
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{res: res, opts: opts, log: log.WithField("component", "observer")}
}

type CatalogResponse struct {
	ProtocolVersion string           `json:"protocol_version"`
	WorldSeed       int64            `json:"world_seed"`
	Submap          protocol.Dims    `json:"submap"`
	Catalog         catalogs.Summary `json:"catalog"`
}

type FeatureView struct {
	ID      string `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Size    int    `json:"size"`
	Shape   string `json:"shape"`
	Terrain string `json:"terrain,omitempty"`
}

type CaveView struct {
	Floor   int `json:"floor"`
	Walls   int `json:"walls"`
	Islands int `json:"islands"`
}

// LayoutResponse describes how a submap was generated.
type LayoutResponse struct {
	BiomeID  string        `json:"biome_id"`
	Known    bool          `json:"known"`
	Kind     string        `json:"kind"`
	SeedText string        `json:"seed_text"`
	Starting bool          `json:"starting"`
	Rows     int           `json:"rows"`
	Cols     int           `json:"cols"`
	Digest   string        `json:"digest"`
	Vertical bool          `json:"vertical,omitempty"`
	Path     [][2]int      `json:"path,omitempty"`
	Features []FeatureView `json:"features,omitempty"`
	Cave     *CaveView     `json:"cave,omitempty"`
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/catalog", s.CatalogHandler())
	mux.HandleFunc("/v1/observe/submap", s.SubmapHandler())
	if s.opts.Stats != nil {
		mux.HandleFunc("/stats", s.StatsHandler())
	}
}

func (s *Server) CatalogHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(rw, CatalogResponse{
			ProtocolVersion: protocol.Version,
			WorldSeed:       s.opts.WorldSeed,
			Submap:          protocol.Dims{Rows: s.opts.Dims.Rows, Cols: s.opts.Dims.Cols},
			Catalog:         s.res.Catalogs().Summary(),
		})
	}
}

func (s *Server) StatsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(rw, s.opts.Stats())
	}
}

// SubmapHandler renders one submap as ASCII (default) or as its layout in
// JSON (format=json). Query: biome, px, py and optionally seed, rows, cols.
func (s *Server) SubmapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		q, err := s.parseQuery(r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if q.Dims.Exceeds(s.opts.MaxCells) {
			http.Error(rw, "submap too large", http.StatusRequestEntityTooLarge)
			return
		}

		sm, err := s.res.Render(q)
		if err != nil {
			if errors.Is(err, resolver.ErrContractViolation) {
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
			s.log.WithError(err).Error("render failed")
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}

		if r.URL.Query().Get("format") != "json" {
			rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
			rw.Header().Set("X-Submap-Digest", sm.Digest())
			_, _ = rw.Write([]byte(sm.ASCII()))
			return
		}

		l, err := s.res.Describe(q)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(rw, layoutResponse(l, sm.Digest()))
	}
}

func layoutResponse(l *resolver.Layout, digest string) LayoutResponse {
	out := LayoutResponse{
		BiomeID:  l.Query.BiomeID,
		Known:    l.Known,
		Kind:     l.Biome.Kind.String(),
		SeedText: l.SeedText,
		Starting: l.Starting,
		Rows:     l.Query.Dims.Rows,
		Cols:     l.Query.Dims.Cols,
		Digest:   digest,
		Vertical: l.Path.Vertical,
	}
	for _, p := range l.Path.Points {
		out.Path = append(out.Path, [2]int{p.X, p.Y})
	}
	for _, f := range l.Features {
		out.Features = append(out.Features, FeatureView{
			ID:      f.Config.ID,
			X:       f.X,
			Y:       f.Y,
			Size:    f.ActualSize,
			Shape:   f.Config.Shape.String(),
			Terrain: f.Config.GeneratesTerrain,
		})
	}
	if l.Cave != nil {
		out.Cave = &CaveView{
			Floor:   l.Cave.Count(gen.Floor),
			Walls:   l.Cave.Count(gen.Wall),
			Islands: l.Cave.Islands(),
		}
	}
	return out
}

func (s *Server) parseQuery(r *http.Request) (resolver.SubmapQuery, error) {
	v := r.URL.Query()
	q := resolver.SubmapQuery{
		WorldSeed: s.opts.WorldSeed,
		BiomeID:   v.Get("biome"),
		Dims:      s.opts.Dims,
	}
	if q.BiomeID == "" {
		return q, errors.New("missing biome")
	}
	var err error
	if q.Parent.X, err = intParam(v.Get("px"), 0); err != nil {
		return q, errors.New("bad px")
	}
	if q.Parent.Y, err = intParam(v.Get("py"), 0); err != nil {
		return q, errors.New("bad py")
	}
	if raw := v.Get("seed"); raw != "" {
		if q.WorldSeed, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return q, errors.New("bad seed")
		}
	}
	if q.Dims.Rows, err = intParam(v.Get("rows"), q.Dims.Rows); err != nil {
		return q, errors.New("bad rows")
	}
	if q.Dims.Cols, err = intParam(v.Get("cols"), q.Dims.Cols); err != nil {
		return q, errors.New("bad cols")
	}
	return q, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
