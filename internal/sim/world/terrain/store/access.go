package store

import (
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// MaxCells bounds the total number of cached cells.
	MaxCells    int64
	Counters    int64
	BufferItems int64
}

// SubmapStore memoizes generated layers. It is safe for concurrent use. A
// nil *SubmapStore is valid and always generates.
type SubmapStore struct {
	cache *ristretto.Cache[string, *Layer]
	log   logrus.FieldLogger

	hits   atomic.Uint64
	misses atomic.Uint64
}

type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

func NewSubmapStore(opts Options, log logrus.FieldLogger) (*SubmapStore, error) {
	if opts.Counters <= 0 {
		opts.Counters = 1 << 16
	}
	if opts.BufferItems <= 0 {
		opts.BufferItems = 64
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *Layer]{
		NumCounters: opts.Counters,
		MaxCost:     opts.MaxCells,
		BufferItems: opts.BufferItems,
		// Cost is counted in cells only.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SubmapStore{cache: c, log: log.WithField("component", "submap_store")}, nil
}

// GetOrGen returns the cached layer for k, or runs generate and stores the
// result. The cache may refuse the write; callers always get a layer either
// way.
func (s *SubmapStore) GetOrGen(k Key, generate func() *Layer) *Layer {
	if l, ok := s.Get(k); ok {
		return l
	}
	l := generate()
	s.Put(k, l)
	return l
}

// Get looks up a cached layer and counts the hit or miss.
func (s *SubmapStore) Get(k Key) (*Layer, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}
	if l, ok := s.cache.Get(k.String()); ok {
		s.hits.Add(1)
		return l, true
	}
	s.misses.Add(1)
	return nil, false
}

// Put stores l under k. An admitted write is visible to Get once Put
// returns.
func (s *SubmapStore) Put(k Key, l *Layer) {
	if s == nil || s.cache == nil {
		return
	}
	_ = l.Digest()
	key := k.String()
	if !s.cache.Set(key, l, l.Cost()) {
		s.log.WithField("key", key).Debug("layer not admitted")
		return
	}
	s.cache.Wait()
}

// Wait blocks until buffered writes are applied.
func (s *SubmapStore) Wait() {
	if s != nil && s.cache != nil {
		s.cache.Wait()
	}
}

func (s *SubmapStore) Forget(k Key) {
	if s != nil && s.cache != nil {
		s.cache.Del(k.String())
	}
}

func (s *SubmapStore) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

func (s *SubmapStore) Close() {
	if s != nil && s.cache != nil {
		s.cache.Close()
	}
}
