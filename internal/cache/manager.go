package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"flight-dashboard/internal/metrics"
	"flight-dashboard/pkg/models"
)

// slot holds one key's entry. Each key has its own lock so unrelated keys
// never block each other.
type slot[T any] struct {
	mu       sync.RWMutex
	entry    *models.CacheEntry[T]
	inflight int
}

func (s *slot[T]) get() *models.CacheEntry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry
}

func (s *slot[T]) set(e *models.CacheEntry[T]) {
	s.mu.Lock()
	s.entry = e
	s.mu.Unlock()
}

func (s *slot[T]) begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

// tryBegin claims the slot for a refresh unless one is already running
func (s *slot[T]) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *slot[T]) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func (s *slot[T]) refreshing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// Manager is an in-process store of last known good values with TTL,
// at most one concurrent fetch per key, and stale serving on failure.
type Manager[T any] struct {
	name   string
	opts   Options[T]
	logger *zap.Logger
	group  singleflight.Group

	mu    sync.Mutex
	slots map[string]*slot[T]

	bg *backgroundState[T]
}

// NewManager creates a new Manager
func NewManager[T any](name string, opts Options[T], logger *zap.Logger) *Manager[T] {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultCacheConfig().TTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultCacheConfig().FetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager[T]{
		name:   name,
		opts:   opts,
		logger: logger.With(zap.String("cache", name)),
		slots:  make(map[string]*slot[T]),
		bg:     newBackgroundState[T](),
	}
}

func (m *Manager[T]) slot(key string) *slot[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot[T]{}
		m.slots[key] = s
	}
	return s
}

func (m *Manager[T]) lookup(key string) (*slot[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	return s, ok
}

// GetOrFetch returns the value for key using the default TTL
func (m *Manager[T]) GetOrFetch(ctx context.Context, key string, fetcher Fetcher[T]) Result[T] {
	return m.GetOrFetchTTL(ctx, key, m.opts.DefaultTTL, fetcher)
}

// GetOrFetchTTL returns a fresh cached value, or refreshes synchronously when
// the entry is missing or older than ttl. Concurrent callers for the same key
// share one fetch. When the refresh fails or ctx ends first, the last good
// value is returned as stale, or a processing result when there is none.
func (m *Manager[T]) GetOrFetchTTL(ctx context.Context, key string, ttl time.Duration, fetcher Fetcher[T]) Result[T] {
	s := m.slot(key)
	if e := s.get(); e != nil && e.Age(m.opts.Now()) < ttl {
		metrics.CacheRequests.WithLabelValues(m.name, string(StatusHit)).Inc()
		m.logger.Debug("cache hit", zap.String("key", key))
		return m.result(e, StatusHit, nil)
	}

	metrics.CacheRequests.WithLabelValues(m.name, string(StatusMiss)).Inc()
	m.logger.Debug("cache miss", zap.String("key", key))
	return m.await(ctx, key, s, ttl, fetcher)
}

// Refresh fetches key even when its entry is fresh, joining a fetch that is
// already running. Failures fall back like GetOrFetch.
func (m *Manager[T]) Refresh(ctx context.Context, key string, fetcher Fetcher[T]) Result[T] {
	m.logger.Debug("cache refresh forced", zap.String("key", key))
	return m.await(ctx, key, m.slot(key), m.opts.DefaultTTL, fetcher)
}

func (m *Manager[T]) await(ctx context.Context, key string, s *slot[T], ttl time.Duration, fetcher Fetcher[T]) Result[T] {
	ch := m.group.DoChan(key, func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx), key, s, ttl, fetcher, "foreground")
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return m.fallback(key, s, r.Err)
		}
		return m.result(r.Val.(*models.CacheEntry[T]), StatusMiss, nil)
	case <-ctx.Done():
		return m.fallback(key, s, ctx.Err())
	}
}

// refresh runs fetcher and stores the value. It is always called through the
// singleflight group.
func (m *Manager[T]) refresh(parent context.Context, key string, s *slot[T], ttl time.Duration, fetcher Fetcher[T], trigger string) (*models.CacheEntry[T], error) {
	s.begin()
	defer s.end()

	ctx, cancel := context.WithTimeout(parent, m.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	value, err := safeFetch(ctx, fetcher)
	elapsed := time.Since(start)
	metrics.CacheRefreshDuration.WithLabelValues(m.name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.CacheRefreshes.WithLabelValues(m.name, trigger, "error").Inc()
		m.logger.Warn("cache refresh failed",
			zap.String("key", key),
			zap.String("trigger", trigger),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	entry := models.NewCacheEntry(key, value, ttl, m.opts.Now())
	s.set(entry)
	metrics.CacheRefreshes.WithLabelValues(m.name, trigger, "ok").Inc()
	m.logger.Info("cache refreshed",
		zap.String("key", key),
		zap.String("trigger", trigger),
		zap.Duration("elapsed", elapsed),
	)

	if m.opts.Sink != nil {
		if err := m.opts.Sink.Publish(ctx, key, value, entry.FetchedAt, ttl); err != nil {
			m.logger.Warn("cache sink publish failed", zap.String("key", key), zap.Error(err))
		}
	}
	return entry, nil
}

func safeFetch[T any](ctx context.Context, fetcher Fetcher[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panic: %v", r)
		}
	}()
	return fetcher(ctx)
}

func (m *Manager[T]) fallback(key string, s *slot[T], cause error) Result[T] {
	if e := s.get(); e != nil {
		metrics.CacheRequests.WithLabelValues(m.name, string(StatusStale)).Inc()
		m.logger.Warn("serving stale cache entry",
			zap.String("key", key),
			zap.Duration("age", e.Age(m.opts.Now())),
			zap.Error(cause),
		)
		return m.result(e, StatusStale, cause)
	}

	metrics.CacheRequests.WithLabelValues(m.name, string(StatusProcessing)).Inc()
	m.logger.Warn("no cache entry available", zap.String("key", key), zap.Error(cause))
	return Result[T]{Status: StatusProcessing, Err: cause}
}

func (m *Manager[T]) result(e *models.CacheEntry[T], status Status, cause error) Result[T] {
	return Result[T]{
		Value:     m.clone(e.Value),
		Status:    status,
		FetchedAt: e.FetchedAt,
		Age:       e.Age(m.opts.Now()),
		Err:       cause,
	}
}

func (m *Manager[T]) clone(v T) T {
	if m.opts.Clone == nil {
		return v
	}
	return m.opts.Clone(v)
}

// Peek returns a copy of the entry for key without fetching
func (m *Manager[T]) Peek(key string) (*models.CacheEntry[T], bool) {
	s, ok := m.lookup(key)
	if !ok {
		return nil, false
	}
	e := s.get()
	if e == nil {
		return nil, false
	}
	cp := *e
	cp.Value = m.clone(e.Value)
	cp.IsRefreshing = s.refreshing()
	return &cp, true
}

// Refreshing reports whether a fetch for key is running
func (m *Manager[T]) Refreshing(key string) bool {
	s, ok := m.lookup(key)
	return ok && s.refreshing()
}

// RefreshAsync starts a background refresh of key unless one is already
// running, and reports whether it started one.
func (m *Manager[T]) RefreshAsync(key string, ttl time.Duration, fetcher Fetcher[T]) bool {
	s := m.slot(key)
	if !s.tryBegin() {
		return false
	}

	go func() {
		defer s.end()
		_, _, _ = m.group.Do(key, func() (interface{}, error) {
			return m.refresh(context.Background(), key, s, ttl, fetcher, "async")
		})
	}()
	return true
}

// Clear removes the given keys, or every key when none are given. In-flight
// fetches for cleared keys no longer satisfy new callers.
func (m *Manager[T]) Clear(keys ...string) {
	m.mu.Lock()
	if len(keys) == 0 {
		for key := range m.slots {
			m.group.Forget(key)
		}
		m.slots = make(map[string]*slot[T])
	} else {
		for _, key := range keys {
			delete(m.slots, key)
			m.group.Forget(key)
		}
	}
	m.mu.Unlock()

	m.logger.Info("cache cleared", zap.Strings("keys", keys))
}

// Keys returns the keys holding a value, sorted
func (m *Manager[T]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.slots))
	for key, s := range m.slots {
		if s.get() != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Stats describes every stored entry
func (m *Manager[T]) Stats() []EntryInfo {
	now := m.opts.Now()
	var out []EntryInfo
	for _, key := range m.Keys() {
		s, ok := m.lookup(key)
		if !ok {
			continue
		}
		e := s.get()
		if e == nil {
			continue
		}
		out = append(out, EntryInfo{
			Key:        key,
			FetchedAt:  e.FetchedAt,
			Age:        e.Age(now),
			TTL:        e.TTL,
			Remaining:  e.RemainingTTL(now),
			Fresh:      e.IsFresh(now),
			Refreshing: s.refreshing(),
			Background: m.bg.registered(key),
		})
	}
	return out
}
