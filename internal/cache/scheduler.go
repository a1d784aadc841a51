package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned by Start when the scheduler is running
var ErrAlreadyStarted = errors.New("background refresh already started")

type registration[T any] struct {
	key      string
	fetcher  Fetcher[T]
	interval time.Duration
	ttl      time.Duration
}

type backgroundState[T any] struct {
	mu            sync.Mutex
	registrations map[string]registration[T]
	ctx           context.Context // set while running
	cancel        context.CancelFunc
	loops         map[string]context.CancelFunc
	wg            sync.WaitGroup
}

func newBackgroundState[T any]() *backgroundState[T] {
	return &backgroundState[T]{
		registrations: make(map[string]registration[T]),
		loops:         make(map[string]context.CancelFunc),
	}
}

func (b *backgroundState[T]) registered(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.registrations[key]
	return ok
}

// RegisterBackgroundRefresh schedules key to be refreshed every interval.
// Registering a key again replaces its fetcher and interval. When the
// scheduler is already running the key's loop starts (or restarts) at once.
func (m *Manager[T]) RegisterBackgroundRefresh(key string, fetcher Fetcher[T], interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCacheConfig().RefreshInterval
	}
	reg := registration[T]{key: key, fetcher: fetcher, interval: interval, ttl: m.opts.DefaultTTL}

	m.bg.mu.Lock()
	defer m.bg.mu.Unlock()
	m.bg.registrations[key] = reg

	running := m.bg.ctx != nil
	if running {
		if cancel, ok := m.bg.loops[key]; ok {
			cancel()
		}
		m.startLoop(reg)
	}
	m.logger.Info("background refresh registered",
		zap.String("key", key),
		zap.Duration("interval", interval),
		zap.Bool("running", running),
	)
}

// Start launches one refresh loop per registered key. Each loop warms its key
// immediately and then refreshes on its interval until ctx ends or Stop is
// called.
func (m *Manager[T]) Start(ctx context.Context) error {
	m.bg.mu.Lock()
	defer m.bg.mu.Unlock()
	if m.bg.cancel != nil {
		return ErrAlreadyStarted
	}

	m.bg.ctx, m.bg.cancel = context.WithCancel(ctx)
	for _, reg := range m.bg.registrations {
		m.startLoop(reg)
	}
	m.logger.Info("background refresh started", zap.Int("keys", len(m.bg.registrations)))
	return nil
}

// startLoop must be called with m.bg.mu held while running
func (m *Manager[T]) startLoop(reg registration[T]) {
	ctx, cancel := context.WithCancel(m.bg.ctx)
	m.bg.loops[reg.key] = cancel
	m.bg.wg.Add(1)
	go m.refreshLoop(ctx, reg)
}

// Stop cancels every refresh loop and waits for them to return
func (m *Manager[T]) Stop() {
	m.bg.mu.Lock()
	cancel := m.bg.cancel
	m.bg.ctx, m.bg.cancel = nil, nil
	m.bg.loops = make(map[string]context.CancelFunc)
	m.bg.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.bg.wg.Wait()
	m.logger.Info("background refresh stopped")
}

func (m *Manager[T]) refreshLoop(ctx context.Context, reg registration[T]) {
	defer m.bg.wg.Done()

	ticker := time.NewTicker(reg.interval)
	defer ticker.Stop()

	m.backgroundRefresh(ctx, reg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.backgroundRefresh(ctx, reg)
		}
	}
}

// backgroundRefresh keeps the previous value when the fetch fails
func (m *Manager[T]) backgroundRefresh(ctx context.Context, reg registration[T]) {
	s := m.slot(reg.key)
	_, err, _ := m.group.Do(reg.key, func() (interface{}, error) {
		return m.refresh(ctx, reg.key, s, reg.ttl, reg.fetcher, "background")
	})
	if err != nil && ctx.Err() == nil {
		m.logger.Warn("background refresh kept previous value",
			zap.String("key", reg.key),
			zap.Error(err),
		)
	}
}
