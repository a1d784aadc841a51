// Package mirror publishes every refreshed cache value to Redis so sibling
// dashboards can read the same snapshots. The service never reads its own
// values back; a restart always begins with an empty in-process cache.
package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"flight-dashboard/internal/metrics"
)

// Config configuration for the Redis mirror
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	Prefix       string        `mapstructure:"prefix"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		Addresses:    []string{"localhost:6379"},
		Database:     0,
		Prefix:       "flight-dashboard:",
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Snapshot is the document stored under each mirrored key
type Snapshot struct {
	Key       string          `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	TTL       time.Duration   `json:"ttl"`
	Value     json.RawMessage `json:"value"`
}

// RedisMirror writes cache values to Redis
type RedisMirror struct {
	client redis.UniversalClient
	logger *zap.Logger
	config *Config
}

// NewRedisMirror connects to Redis and checks the connection
func NewRedisMirror(config *Config, logger *zap.Logger) (*RedisMirror, error) {
	if config == nil {
		config = DefaultConfig()
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        config.Addresses,
		Password:     config.Password,
		DB:           config.Database,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisMirror{
		client: client,
		logger: logger,
		config: config,
	}, nil
}

func (rm *RedisMirror) key(key string) string {
	return rm.config.Prefix + key
}

// Publish stores value under key with the entry's TTL
func (rm *RedisMirror) Publish(ctx context.Context, key string, value any, fetchedAt time.Time, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		metrics.MirrorPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal snapshot value: %w", err)
	}

	data, err := json.Marshal(Snapshot{Key: key, FetchedAt: fetchedAt, TTL: ttl, Value: raw})
	if err != nil {
		metrics.MirrorPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := rm.client.Set(ctx, rm.key(key), data, ttl).Err(); err != nil {
		metrics.MirrorPublishes.WithLabelValues("error").Inc()
		rm.logger.Error("failed to publish snapshot", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	metrics.MirrorPublishes.WithLabelValues("ok").Inc()
	rm.logger.Debug("snapshot published",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Duration("ttl", ttl))
	return nil
}

// Delete removes the given keys, or every mirrored key when none are given
func (rm *RedisMirror) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		var err error
		keys, err = rm.Keys(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = rm.key(k)
	}
	if err := rm.client.Del(ctx, full...).Err(); err != nil {
		rm.logger.Error("failed to delete snapshots", zap.Error(err))
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}

	rm.logger.Debug("snapshots deleted", zap.Int("count", len(keys)))
	return nil
}

// Keys lists mirrored keys without the prefix
func (rm *RedisMirror) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := rm.client.Scan(ctx, 0, rm.config.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), rm.config.Prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

// Ping checks the connection with Redis
func (rm *RedisMirror) Ping(ctx context.Context) error {
	if err := rm.client.Ping(ctx).Err(); err != nil {
		rm.logger.Error("ping failed", zap.Error(err))
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the connection with Redis
func (rm *RedisMirror) Close() error {
	if err := rm.client.Close(); err != nil {
		rm.logger.Error("failed to close Redis connection", zap.Error(err))
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}

	rm.logger.Info("Redis connection closed successfully")
	return nil
}
