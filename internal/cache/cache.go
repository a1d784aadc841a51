package cache

import (
	"context"
	"time"
)

// Fetcher produces a fresh value for a key
type Fetcher[T any] func(ctx context.Context) (T, error)

// Status describes where a Result came from
type Status string

const (
	// StatusHit is a fresh cached value
	StatusHit Status = "hit"
	// StatusMiss is a value fetched for (or joined by) this call
	StatusMiss Status = "miss"
	// StatusStale is the last good value served after a failed or slow refresh
	StatusStale Status = "stale"
	// StatusProcessing means no value exists yet; try again shortly
	StatusProcessing Status = "processing"
)

// Result is what a read from the Manager returns. Err holds the refresh
// failure behind a stale or processing result and is informational only.
type Result[T any] struct {
	Value     T
	Status    Status
	FetchedAt time.Time
	Age       time.Duration
	Err       error
}

// Available reports whether Value holds data
func (r Result[T]) Available() bool {
	return r.Status != StatusProcessing
}

// Sink receives every successfully refreshed value
type Sink interface {
	Publish(ctx context.Context, key string, value any, fetchedAt time.Time, ttl time.Duration) error
}

// CacheConfig configuration for the cache
type CacheConfig struct {
	TTL               time.Duration `mapstructure:"ttl"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	ForegroundTimeout time.Duration `mapstructure:"foreground_timeout"`
	OccupancyTTL      time.Duration `mapstructure:"occupancy_ttl"`
}

// DefaultCacheConfig returns the default configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:               5 * time.Minute,
		RefreshInterval:   4 * time.Minute,
		FetchTimeout:      60 * time.Second,
		ForegroundTimeout: 25 * time.Second,
		OccupancyTTL:      time.Minute,
	}
}

// Options configures a Manager
type Options[T any] struct {
	DefaultTTL   time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
	// Clone copies values handed out to callers; nil hands out the stored value.
	Clone func(T) T
	Sink  Sink
}

// EntryInfo describes one cache key for diagnostics
type EntryInfo struct {
	Key        string        `json:"key"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Age        time.Duration `json:"age"`
	TTL        time.Duration `json:"ttl"`
	Remaining  time.Duration `json:"remaining"`
	Fresh      bool          `json:"fresh"`
	Refreshing bool          `json:"refreshing"`
	Background bool          `json:"background"`
}
