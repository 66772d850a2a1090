package dictionary

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"golang.org/x/sync/singleflight"
)

// StoreConfig configures a Store
type StoreConfig struct {
	Index IndexOptions
	// RetryInterval is the minimum gap between fetch attempts after a failure.
	RetryInterval time.Duration
	// FetchTimeout bounds a single fetch, independent of the caller's context.
	FetchTimeout time.Duration
	Logger       *logging.Logger
}

// Store loads the vocabulary once and shares the built index with every
// scan. It is safe for concurrent use.
type Store struct {
	source Source
	cfg    StoreConfig
	logger *logging.Logger

	index atomic.Pointer[Index]
	empty *Index
	group singleflight.Group

	mu          sync.Mutex
	lastFailure time.Time
	lastErr     error

	now func() time.Time
}

// NewStore creates a store that fetches from source on first use
func NewStore(source Source, cfg StoreConfig) *Store {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		source: source,
		cfg:    cfg,
		logger: logger,
		empty:  NewIndex(nil, cfg.Index),
		now:    time.Now,
	}
}

// NewStaticStore returns a store already holding entries
func NewStaticStore(entries []Entry, opts IndexOptions) *Store {
	s := NewStore(nil, StoreConfig{Index: opts})
	s.index.Store(NewIndex(entries, opts))
	return s
}

// Load returns the shared index, fetching it on first use. It never returns
// nil: when the source is unavailable the result is an empty index and
// callers degrade to "no matches".
func (s *Store) Load(ctx context.Context) *Index {
	if ix := s.index.Load(); ix != nil {
		return ix
	}
	if s.source == nil || s.recentlyFailed() {
		return s.empty
	}

	v, err, _ := s.group.Do("load", func() (interface{}, error) {
		if ix := s.index.Load(); ix != nil {
			return ix, nil
		}

		// Other callers share this fetch, so it must outlive the first
		// caller's cancellation.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()

		start := s.now()
		entries, err := s.source.Fetch(fetchCtx)
		if err != nil {
			s.recordFailure(err)
			return nil, errors.NewDictionaryUnavailableError(s.source.Name(), err)
		}

		ix := NewIndex(entries, s.cfg.Index)
		s.index.Store(ix)
		s.logger.Info("Dictionary loaded",
			"source", s.source.Name(),
			"entries", ix.Len(),
			"duration", s.now().Sub(start),
		)
		return ix, nil
	})
	if err != nil {
		s.logger.Warn("Dictionary unavailable, matching disabled", "error", err)
		return s.empty
	}
	return v.(*Index)
}

// Ready reports whether the vocabulary has been loaded
func (s *Store) Ready() bool {
	return s.index.Load() != nil
}

// Size returns the number of loaded entries
func (s *Store) Size() int {
	return s.index.Load().Len()
}

// LastError returns the most recent fetch failure, if any
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) recentlyFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFailure.IsZero() || s.cfg.RetryInterval <= 0 {
		return false
	}
	return s.now().Sub(s.lastFailure) < s.cfg.RetryInterval
}

func (s *Store) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFailure = s.now()
	s.lastErr = err
}
