package schiphol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"flight-dashboard/internal/metrics"
	"flight-dashboard/pkg/models"
)

const (
	// DefaultBaseURL is the public Schiphol Flight API
	DefaultBaseURL = "https://api.schiphol.nl/public-flights"
	// ResourceVersion is the fixed JSON resource version requested
	ResourceVersion = "v4"

	maxBodyBytes = 16 << 20
	breakerName  = "schiphol-flights"
)

// Config configures the upstream client
type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	AppID         string        `mapstructure:"app_id"`
	AppKey        string        `mapstructure:"app_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Retry         RetryPolicy   `mapstructure:"retry"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker around page requests
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// DefaultConfig returns the default client configuration without credentials
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       10 * time.Second,
		RatePerSecond: 5,
		Burst:         5,
		Retry:         DefaultRetryPolicy(),
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// FetchConfig selects one logical flight set
type FetchConfig struct {
	Direction string
	Airline   string
	Date      string
	MaxPages  int // 0 means no ceiling
}

func (fc FetchConfig) validate() error {
	if fc.Direction != models.DirectionDeparture && fc.Direction != models.DirectionArrival {
		return fmt.Errorf("%w: direction %q", ErrInvalidFetchConfig, fc.Direction)
	}
	if _, err := time.Parse(models.DateLayout, fc.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidFetchConfig, fc.Date)
	}
	if fc.MaxPages < 0 {
		return fmt.Errorf("%w: max pages %d", ErrInvalidFetchConfig, fc.MaxPages)
	}
	return nil
}

// FlightSet is the concatenation of all fetched pages in page order
type FlightSet struct {
	Flights []models.Flight
	Pages   int  // pages fetched successfully, including the final empty one
	Capped  bool // the page ceiling stopped pagination
}

// Client fetches flight sets from the Schiphol Flight API
type Client struct {
	baseURL    string
	appID      string
	appKey     string
	httpClient *http.Client
	retry      RetryPolicy
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]RawFlight]
	logger     *zap.Logger
}

// NewClient creates a new upstream client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.AppID == "" || cfg.AppKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		appKey:     cfg.AppKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
	c.cb = newBreaker(cfg.Breaker, logger)
	return c, nil
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[[]RawFlight] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[[]RawFlight](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors are our fault, not the upstream's.
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Fetch paginates the flights resource starting at page 0. It stops on the
// first empty page, on the page ceiling, or on a failure. On failure the
// pages collected so far are returned together with a *PageError.
func (c *Client) Fetch(ctx context.Context, fc FetchConfig) (*FlightSet, error) {
	if err := fc.validate(); err != nil {
		return &FlightSet{}, err
	}

	set := &FlightSet{}
	start := time.Now()
	for page := 0; ; page++ {
		if fc.MaxPages > 0 && page >= fc.MaxPages {
			set.Capped = true
			break
		}

		raws, err := c.fetchPage(ctx, fc, page)
		if err != nil {
			c.logger.Warn("upstream pagination aborted",
				zap.Int("page", page),
				zap.Int("flights_collected", len(set.Flights)),
				zap.Error(err),
			)
			return set, newPageError(page, err)
		}
		set.Pages++

		if len(raws) == 0 {
			break
		}
		for _, raw := range raws {
			if problems := Problems(raw); len(problems) > 0 {
				c.logger.Debug("upstream record missing fields",
					zap.String("flight", raw.FlightName),
					zap.Strings("fields", problems),
				)
			}
		}
		set.Flights = append(set.Flights, NormalizeAll(raws)...)
	}

	c.logger.Info("upstream flight set fetched",
		zap.String("direction", fc.Direction),
		zap.String("airline", fc.Airline),
		zap.String("date", fc.Date),
		zap.Int("pages", set.Pages),
		zap.Int("flights", len(set.Flights)),
		zap.Bool("capped", set.Capped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return set, nil
}

// fetchPage requests one page under the retry policy and circuit breaker
func (c *Client) fetchPage(ctx context.Context, fc FetchConfig, page int) ([]RawFlight, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamPageDuration.Observe(time.Since(start).Seconds())
	}()

	var records []RawFlight
	err := c.retry.Do(ctx, func() error {
		r, err := c.cb.Execute(func() ([]RawFlight, error) {
			return c.requestPage(ctx, fc, page)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrUpstreamTransport, err))
			}
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		records = r
		return nil
	}, func(err error, wait time.Duration) {
		metrics.UpstreamRetries.Inc()
		c.logger.Warn("upstream page failed, retrying",
			zap.Int("page", page),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		metrics.UpstreamPages.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(records) == 0 {
		metrics.UpstreamPages.WithLabelValues("empty").Inc()
	} else {
		metrics.UpstreamPages.WithLabelValues("ok").Inc()
	}
	return records, nil
}

// requestPage performs a single HTTP request for one page
func (c *Client) requestPage(ctx context.Context, fc FetchConfig, page int) ([]RawFlight, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrUpstreamTransport, err)
	}

	query := url.Values{}
	query.Set("flightDirection", fc.Direction)
	if fc.Airline != "" {
		query.Set("airline", fc.Airline)
	}
	query.Set("scheduleDate", fc.Date)
	query.Set("page", strconv.Itoa(page))

	reqURL := c.baseURL + "/flights?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("app_id", c.appID)
	req.Header.Set("app_key", c.appKey)
	req.Header.Set("ResourceVersion", ResourceVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamTransport, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var p flightsPage
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamDecode, err)
	}
	return p.Flights, nil
}
