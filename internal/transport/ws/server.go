package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	qlog "aralia.dev/internal/persistence/log"
	"aralia.dev/internal/protocol"
	"aralia.dev/internal/sim/encoding"
	"aralia.dev/internal/sim/world/terrain/gen"
	"aralia.dev/internal/sim/world/terrain/resolver"
	"aralia.dev/internal/sim/world/terrain/store"
)

// VisitRecorder receives the digest of every rendered submap.
type VisitRecorder interface {
	RecordVisit(k store.Key, digest string)
}

// QueryWriter receives one entry per answered request.
type QueryWriter interface {
	WriteQuery(e qlog.QueryEntry) error
}

type Options struct {
	// WorldSeed and Dims fill in requests that omit them.
	WorldSeed int64
	Dims      gen.Dims
	// MaxCells caps the submap size of every request. Zero means 1<<16.
	MaxCells int
	// OutQueue is the per-connection write queue length. Zero means 16.
	OutQueue int

	Ledger  VisitRecorder
	Queries QueryWriter
}

type Server struct {
	res  *resolver.Resolver
	opts Options
	log  logrus.FieldLogger

	upgrader websocket.Upgrader
	conns    atomic.Int64
	served   atomic.Uint64
}

func NewServer(res *resolver.Resolver, opts Options, log logrus.FieldLogger) *Server {
	if opts.MaxCells <= 0 {
		opts.MaxCells = 1 << 16
	}
	if opts.OutQueue <= 0 {
		opts.OutQueue = 16
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		res:  res,
		opts: opts,
		log:  log.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type Stats struct {
	Conns  int64  `json:"conns"`
	Served uint64 `json:"served"`
}

func (s *Server) Stats() Stats {
	return Stats{Conns: s.conns.Load(), Served: s.served.Load()}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.conns.Add(1)
		defer s.conns.Add(-1)
		log := s.log.WithField("session", sessionID)
		log.Debug("session opened")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan []byte, s.opts.OutQueue)

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Requests on one connection are answered in order.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			b, err := json.Marshal(s.Handle(sessionID, msg))
			if err != nil {
				log.WithError(err).Error("encode response")
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		<-writeDone
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		log.Debug("session closed")
	}
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}

	sum := s.res.Catalogs().Summary()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       uuid.NewString(),
		WorldSeed:       s.opts.WorldSeed,
		Submap:          protocol.Dims{Rows: s.opts.Dims.Rows, Cols: s.opts.Dims.Cols},
		Catalog:         protocol.CatalogRef{Digest: sum.Digest, Biomes: sum.Biomes},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return ""
	}
	s.log.WithFields(logrus.Fields{"session": welcome.SessionID, "client": hello.ClientName}).Info("client connected")
	return welcome.SessionID
}

// Handle answers one request message. It never returns nil.
func (s *Server) Handle(sessionID string, msg []byte) (resp any) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(base.ReqID, protocol.ErrProtoVersion, fmt.Sprintf("protocol_version %q not supported", base.ProtocolVersion))
	}

	entry := qlog.QueryEntry{ConnID: sessionID, Type: base.Type}
	defer func() {
		if p := recover(); p != nil {
			s.log.WithFields(logrus.Fields{"req_id": base.ReqID, "panic": p}).Error("request panicked")
			resp = protocol.NewError(base.ReqID, protocol.ErrInternal, "internal error")
		}
		if e, ok := resp.(protocol.ErrorMsg); ok {
			entry.Code = e.Code
		}
		s.served.Add(1)
		s.logQuery(entry)
	}()

	switch base.Type {
	case protocol.TypeResolve, protocol.TypeVillageEntry:
		var req protocol.TileReqMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, "bad "+base.Type)
		}
		q := resolver.TileQuery{SubmapQuery: s.submapQuery(req.Submap), Local: gen.Point{X: req.Local[0], Y: req.Local[1]}}
		fillEntry(&entry, q.SubmapQuery)
		entry.X, entry.Y = q.Local.X, q.Local.Y
		if e, ok := s.tooLarge(req.ReqID, q.Dims); ok {
			return e
		}
		if base.Type == protocol.TypeResolve {
			return s.resolve(req.ReqID, q, &entry)
		}
		return s.villageEntry(req.ReqID, q, &entry)

	case protocol.TypeRender:
		var req protocol.RenderMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, "bad RENDER")
		}
		q := s.submapQuery(req.Submap)
		fillEntry(&entry, q)
		if e, ok := s.tooLarge(req.ReqID, q.Dims); ok {
			return e
		}
		return s.render(req.ReqID, q, &entry)

	default:
		return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, fmt.Sprintf("unknown type %q", base.Type))
	}
}

func (s *Server) resolve(reqID string, q resolver.TileQuery, entry *qlog.QueryEntry) any {
	tile, err := s.res.Resolve(q)
	if err != nil {
		return s.errorFor(reqID, err)
	}
	entry.Result = tile.Terrain
	return protocol.TileMsg{
		Type:            protocol.TypeTile,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Terrain:         tile.Terrain,
		Impassable:      tile.Impassable,
	}
}

func (s *Server) villageEntry(reqID string, q resolver.TileQuery, entry *qlog.QueryEntry) any {
	ve, err := s.res.FindVillageEntry(q)
	if err != nil {
		return s.errorFor(reqID, err)
	}
	entry.Result = string(ve.EntryDirection)
	return protocol.EntryMsg{
		Type:             protocol.TypeEntry,
		ProtocolVersion:  protocol.Version,
		ReqID:            reqID,
		Adjacent:         ve.Adjacent,
		VillageDirection: string(ve.VillageDirection),
		EntryDirection:   string(ve.EntryDirection),
	}
}

func (s *Server) render(reqID string, q resolver.SubmapQuery, entry *qlog.QueryEntry) any {
	sm, err := s.res.Render(q)
	if err != nil {
		return s.errorFor(reqID, err)
	}
	snap := sm.Export()
	if s.opts.Ledger != nil {
		s.opts.Ledger.RecordVisit(q.Key(), snap.Digest)
	}
	entry.Result = snap.Digest
	return protocol.SubmapMsg{
		Type:            protocol.TypeSubmap,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Rows:            snap.Rows,
		Cols:            snap.Cols,
		Digest:          snap.Digest,
		Palette:         snap.Palette,
		Encoding:        protocol.EncodingRLE,
		Cells:           encoding.EncodeRLE(snap.Cells),
		Blocked:         encoding.EncodeBits(snap.Blocked),
	}
}

// tooLarge rejects submaps over MaxCells before anything is generated.
func (s *Server) tooLarge(reqID string, d gen.Dims) (protocol.ErrorMsg, bool) {
	if !d.Exceeds(s.opts.MaxCells) {
		return protocol.ErrorMsg{}, false
	}
	return protocol.NewError(reqID, protocol.ErrTooLarge, fmt.Sprintf("%dx%d exceeds %d cells", d.Rows, d.Cols, s.opts.MaxCells)), true
}

func (s *Server) submapQuery(ref protocol.SubmapRef) resolver.SubmapQuery {
	q := resolver.SubmapQuery{
		WorldSeed: s.opts.WorldSeed,
		Parent:    gen.Point{X: ref.Parent[0], Y: ref.Parent[1]},
		BiomeID:   ref.BiomeID,
		Dims:      s.opts.Dims,
	}
	if ref.WorldSeed != nil {
		q.WorldSeed = *ref.WorldSeed
	}
	if ref.Rows != 0 || ref.Cols != 0 {
		q.Dims = gen.Dims{Rows: ref.Rows, Cols: ref.Cols}
	}
	return q
}

func (s *Server) errorFor(reqID string, err error) protocol.ErrorMsg {
	if errors.Is(err, resolver.ErrContractViolation) {
		return protocol.NewError(reqID, protocol.ErrBadRequest, err.Error())
	}
	s.log.WithError(err).WithField("req_id", reqID).Error("query failed")
	return protocol.NewError(reqID, protocol.ErrInternal, "internal error")
}

func (s *Server) logQuery(e qlog.QueryEntry) {
	if s.opts.Queries == nil {
		return
	}
	if err := s.opts.Queries.WriteQuery(e); err != nil {
		s.log.WithError(err).Warn("query log write failed")
	}
}

func fillEntry(e *qlog.QueryEntry, q resolver.SubmapQuery) {
	e.WorldSeed = q.WorldSeed
	e.ParentX, e.ParentY = q.Parent.X, q.Parent.Y
	e.BiomeID = q.BiomeID
	e.Rows, e.Cols = q.Dims.Rows, q.Dims.Cols
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
