package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/mirror"
	"flight-dashboard/internal/schiphol"
	"flight-dashboard/internal/service"
)

// Config main configuration structure
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Upstream schiphol.Config   `mapstructure:"upstream"`
	Cache    cache.CacheConfig `mapstructure:"cache"`
	Pipeline service.Config    `mapstructure:"pipeline"`
	Mirror   mirror.Config     `mapstructure:"mirror"`
	Logger   LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig configuration for the HTTP server
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// LoggerConfig configuration for the logger
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LoadConfig loads .env, config files and environment variables
func LoadConfig() (*Config, error) {
	return Load(viper.New(), ".env")
}

// Load reads configuration into v. envFiles are loaded into the process
// environment first; missing files are ignored.
func Load(v *viper.Viper, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/flight-dashboard")

	// Environment variables
	v.SetEnvPrefix("FD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep the upstream's own variable names
	_ = v.BindEnv("upstream.app_id", "SCHIPHOL_APP_ID", "FD_UPSTREAM_APP_ID")
	_ = v.BindEnv("upstream.app_key", "SCHIPHOL_APP_KEY", "FD_UPSTREAM_APP_KEY")
	_ = v.BindEnv("mirror.addresses", "FD_MIRROR_ADDRESSES")
	_ = v.BindEnv("mirror.password", "FD_MIRROR_PASSWORD")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// A comma separated env value arrives as a single string
	if addressesStr := v.GetString("mirror.addresses"); addressesStr != "" && strings.Contains(addressesStr, ",") {
		addresses := strings.Split(addressesStr, ",")
		for i, addr := range addresses {
			addresses[i] = strings.TrimSpace(addr)
		}
		config.Mirror.Addresses = addresses
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets the default values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 50)
	v.SetDefault("server.rate_burst", 100)

	// Upstream defaults
	upstream := schiphol.DefaultConfig()
	v.SetDefault("upstream.base_url", upstream.BaseURL)
	v.SetDefault("upstream.app_id", "")
	v.SetDefault("upstream.app_key", "")
	v.SetDefault("upstream.timeout", upstream.Timeout)
	v.SetDefault("upstream.rate_per_second", upstream.RatePerSecond)
	v.SetDefault("upstream.burst", upstream.Burst)
	v.SetDefault("upstream.retry.max_attempts", upstream.Retry.MaxAttempts)
	v.SetDefault("upstream.retry.initial_interval", upstream.Retry.InitialInterval)
	v.SetDefault("upstream.retry.max_interval", upstream.Retry.MaxInterval)
	v.SetDefault("upstream.retry.multiplier", upstream.Retry.Multiplier)
	v.SetDefault("upstream.retry.jitter", upstream.Retry.Jitter)
	v.SetDefault("upstream.breaker.consecutive_failures", upstream.Breaker.ConsecutiveFailures)
	v.SetDefault("upstream.breaker.open_timeout", upstream.Breaker.OpenTimeout)

	// Cache defaults
	c := cache.DefaultCacheConfig()
	v.SetDefault("cache.ttl", c.TTL)
	v.SetDefault("cache.refresh_interval", c.RefreshInterval)
	v.SetDefault("cache.fetch_timeout", c.FetchTimeout)
	v.SetDefault("cache.foreground_timeout", c.ForegroundTimeout)
	v.SetDefault("cache.occupancy_ttl", c.OccupancyTTL)

	// Pipeline defaults
	p := service.DefaultConfig()
	v.SetDefault("pipeline.airline", p.Airline)
	v.SetDefault("pipeline.max_pages", p.MaxPages)
	v.SetDefault("pipeline.interactive_max_age", p.InteractiveMaxAge)
	v.SetDefault("pipeline.analytical_max_age", p.AnalyticalMaxAge)

	// Mirror defaults, disabled unless configured
	m := mirror.DefaultConfig()
	v.SetDefault("mirror.enabled", m.Enabled)
	v.SetDefault("mirror.addresses", m.Addresses)
	v.SetDefault("mirror.password", "")
	v.SetDefault("mirror.database", m.Database)
	v.SetDefault("mirror.prefix", m.Prefix)
	v.SetDefault("mirror.max_retries", m.MaxRetries)
	v.SetDefault("mirror.pool_size", m.PoolSize)
	v.SetDefault("mirror.dial_timeout", m.DialTimeout)
	v.SetDefault("mirror.read_timeout", m.ReadTimeout)
	v.SetDefault("mirror.write_timeout", m.WriteTimeout)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Cache.TTL <= 0 || c.Cache.OccupancyTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.ForegroundTimeout <= 0 || c.Cache.FetchTimeout <= 0 {
		return fmt.Errorf("cache timeouts must be positive")
	}
	if c.Pipeline.InteractiveMaxAge <= 0 || c.Pipeline.AnalyticalMaxAge <= 0 {
		return fmt.Errorf("pipeline max ages must be positive")
	}
	if c.Mirror.Enabled && len(c.Mirror.Addresses) == 0 {
		return fmt.Errorf("mirror enabled without addresses")
	}
	return nil
}

// GetAddress returns the full server address
func (sc *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", sc.Host, sc.Port)
}
