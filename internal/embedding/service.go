package embedding

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is returned when no embedding could be produced: empty
// input, backend failure, or caller timeout. It is never fatal to the
// caller; consumers degrade to text-only matching.
var ErrUnavailable = errors.New("embedding unavailable")

const (
	defaultCacheSize = 1000
	defaultWorkers   = 2
)

// Options configures a Service. Zero values take the defaults above.
type Options struct {
	CacheSize int
	Workers   int
}

// Service wraps a Backend with an LRU cache keyed by exact input text and a
// fixed-size worker pool that runs the synchronous inference off the
// caller's goroutine. Concurrent requests for the same text are collapsed
// into a single backend call.
type Service struct {
	backend Backend
	cache   *lru.Cache[string, []float32]
	jobs    chan embedJob
	group   singleflight.Group

	hits     atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64
}

type embedJob struct {
	ctx   context.Context
	text  string
	reply chan embedResult
}

type embedResult struct {
	vec []float32
	err error
}

// NewService creates a Service over backend and starts its worker pool.
func NewService(backend Backend, opts Options) (*Service, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	cache, err := lru.New[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, err
	}

	s := &Service{
		backend: backend,
		cache:   cache,
		jobs:    make(chan embedJob),
	}
	for i := 0; i < opts.Workers; i++ {
		go s.worker()
	}
	return s, nil
}

func (s *Service) worker() {
	for j := range s.jobs {
		vec, err := s.backend.Embed(j.ctx, j.text)
		j.reply <- embedResult{vec: vec, err: err}
	}
}

// Embed returns the vector for text. Cache hits promote the entry to
// most-recently-used and cost no inference work; misses are dispatched to
// the worker pool and the caller blocks until a vector or an unavailability
// signal comes back. Empty text returns ErrUnavailable without touching the
// backend. A timed-out or failed call caches nothing.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrUnavailable
	}

	if vec, ok := s.cache.Get(text); ok {
		s.hits.Add(1)
		return vec, nil
	}
	s.misses.Add(1)

	ch := s.group.DoChan(text, func() (any, error) {
		reply := make(chan embedResult, 1)
		select {
		case s.jobs <- embedJob{ctx: ctx, text: text, reply: reply}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		res := <-reply
		if res.err != nil {
			return nil, res.err
		}
		s.cache.Add(text, res.vec)
		return res.vec, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			s.failures.Add(1)
			log.Printf("[EMBED] backend error for %q: %v", truncate(text, 48), r.Err)
			return nil, ErrUnavailable
		}
		return r.Val.([]float32), nil
	case <-ctx.Done():
		s.failures.Add(1)
		return nil, ErrUnavailable
	}
}

// Dimensions returns the backend's vector size.
func (s *Service) Dimensions() int {
	return s.backend.Dimensions()
}

// Close stops the worker pool. In-flight jobs finish; new Embed calls after
// Close are invalid.
func (s *Service) Close() {
	close(s.jobs)
}

// Stats is a snapshot of cache behavior for operator visibility.
type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Failures uint64 `json:"failures"`
	Cached   int    `json:"cached"`
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		Failures: s.failures.Load(),
		Cached:   s.cache.Len(),
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
