// Package service composes the upstream client, the pipeline passes, the
// cache managers and the occupancy engine into the operations the HTTP
// handlers expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/occupancy"
	"flight-dashboard/internal/pipeline"
	"flight-dashboard/internal/schiphol"
	"flight-dashboard/pkg/models"
)

var (
	// ErrInvalidProfile is returned for an unknown staleness profile name
	ErrInvalidProfile = errors.New("invalid staleness profile")
	// ErrInvalidDirection is returned for a direction other than A or D
	ErrInvalidDirection = errors.New("invalid flight direction")
	// ErrInvalidAirline is returned for an airline that is not an IATA code
	ErrInvalidAirline = errors.New("invalid airline code")
	// ErrFlightNotFound is returned when a flight is not in the current set
	ErrFlightNotFound = errors.New("flight not found")
	// ErrFlightsUnavailable is returned when no flight set could be produced yet
	ErrFlightsUnavailable = errors.New("flight data unavailable")
)

// Staleness profile names
const (
	ProfileInteractive = "interactive"
	ProfileAnalytical  = "analytical"
)

var airlineCode = regexp.MustCompile(`^[A-Za-z0-9]{2}$`)

// FlightSource produces normalized flight sets from upstream
type FlightSource interface {
	Fetch(ctx context.Context, fc schiphol.FetchConfig) (*schiphol.FlightSet, error)
}

// SnapshotStore is the external copy of cached values that is cleared with
// the in-process cache.
type SnapshotStore interface {
	Delete(ctx context.Context, keys ...string) error
}

// Config holds the pipeline defaults
type Config struct {
	Airline           string        `mapstructure:"airline"`
	MaxPages          int           `mapstructure:"max_pages"`
	InteractiveMaxAge time.Duration `mapstructure:"interactive_max_age"`
	AnalyticalMaxAge  time.Duration `mapstructure:"analytical_max_age"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		Airline:           "KL",
		MaxPages:          0,
		InteractiveMaxAge: 24 * time.Hour,
		AnalyticalMaxAge:  72 * time.Hour,
	}
}

// Options configures a FlightService
type Options struct {
	Config   *Config
	Cache    *cache.CacheConfig
	Sink     cache.Sink
	Snapshot SnapshotStore
	Now      func() time.Time
}

// FlightService serves flight sets, dashboards and gate occupancy through
// the cache managers.
type FlightService struct {
	source   FlightSource
	config   *Config
	cacheCfg *cache.CacheConfig
	snapshot SnapshotStore
	now      func() time.Time
	logger   *zap.Logger

	flights *cache.Manager[flightSet]
	gates   *cache.Manager[OccupancyReport]
}

// NewFlightService creates a new FlightService
func NewFlightService(source FlightSource, opts Options, logger *zap.Logger) *FlightService {
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	if opts.Cache == nil {
		opts.Cache = cache.DefaultCacheConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &FlightService{
		source:   source,
		config:   opts.Config,
		cacheCfg: opts.Cache,
		snapshot: opts.Snapshot,
		now:      opts.Now,
		logger:   logger,
	}
	s.flights = cache.NewManager("flights", cache.Options[flightSet]{
		DefaultTTL:   opts.Cache.TTL,
		FetchTimeout: opts.Cache.FetchTimeout,
		Now:          opts.Now,
		Clone:        flightSet.clone,
		Sink:         opts.Sink,
	}, logger)
	s.gates = cache.NewManager("gates", cache.Options[OccupancyReport]{
		DefaultTTL:   opts.Cache.OccupancyTTL,
		FetchTimeout: opts.Cache.FetchTimeout,
		Now:          opts.Now,
		Clone:        OccupancyReport.clone,
		Sink:         opts.Sink,
	}, logger)
	return s
}

// today returns the current Schiphol calendar date
func (s *FlightService) today() string {
	return s.now().In(schiphol.Amsterdam).Format(models.DateLayout)
}

// resolveDate validates date and fills in today when empty
func (s *FlightService) resolveDate(date string) (string, error) {
	if date == "" {
		return s.today(), nil
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: %q", pipeline.ErrInvalidScheduleDate, date)
	}
	return date, nil
}

// flightsKey names the cached flight set. Today's set lives under a stable
// alias so its background refresh follows the date change; readers check
// flightSet.Date because the entry may still hold the previous day.
func (s *FlightService) flightsKey(direction, airline, date string) string {
	if date == s.today() {
		date = "today"
	}
	return fmt.Sprintf("flights:%s:%s:%s", direction, strings.ToUpper(airline), date)
}

func gatesKey(date string) string {
	return "gates:" + date
}

func (s *FlightService) policy(profile string) (pipeline.StalenessPolicy, error) {
	switch profile {
	case "", ProfileInteractive:
		return pipeline.Interactive(s.config.InteractiveMaxAge), nil
	case ProfileAnalytical:
		return pipeline.Analytical(s.config.AnalyticalMaxAge), nil
	}
	return pipeline.StalenessPolicy{}, fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
}

// flightSet is a cached flight list and the date it was fetched for
type flightSet struct {
	Date    string          `json:"date"`
	Flights []models.Flight `json:"flights"`
}

func (f flightSet) clone() flightSet {
	return flightSet{Date: f.Date, Flights: models.CloneFlights(f.Flights)}
}

// flightFetcher fetches one flight set and removes duplicates. A date of
// "today" is resolved when the fetch runs. Partial sets are discarded so a
// failed pagination never replaces a complete one.
func (s *FlightService) flightFetcher(direction, airline, date string) cache.Fetcher[flightSet] {
	return func(ctx context.Context) (flightSet, error) {
		fetchDate := date
		if fetchDate == "today" {
			fetchDate = s.today()
		}

		set, err := s.source.Fetch(ctx, schiphol.FetchConfig{
			Direction: direction,
			Airline:   airline,
			Date:      fetchDate,
			MaxPages:  s.config.MaxPages,
		})
		if err != nil {
			var pageErr *schiphol.PageError
			if errors.As(err, &pageErr) && set != nil {
				s.logger.Warn("discarding partial flight set",
					zap.String("date", fetchDate),
					zap.Int("flights", len(set.Flights)),
					zap.Int("failed_page", pageErr.Page),
				)
			}
			return flightSet{}, err
		}
		if set.Capped {
			s.logger.Warn("flight set truncated by page ceiling",
				zap.String("date", fetchDate),
				zap.Int("pages", set.Pages),
			)
		}
		return flightSet{Date: fetchDate, Flights: pipeline.RemoveDuplicateFlights(set.Flights)}, nil
	}
}

// Start registers today's departures for background refresh and starts the
// refresh loops.
func (s *FlightService) Start(ctx context.Context) error {
	airline := s.config.Airline
	s.flights.RegisterBackgroundRefresh(
		fmt.Sprintf("flights:%s:%s:today", models.DirectionDeparture, strings.ToUpper(airline)),
		s.flightFetcher(models.DirectionDeparture, airline, "today"),
		s.cacheCfg.RefreshInterval,
	)
	return s.flights.Start(ctx)
}

// Stop stops the background refresh loops
func (s *FlightService) Stop() {
	s.flights.Stop()
	s.gates.Stop()
}

// CacheInfo describes where a response's data came from
type CacheInfo struct {
	Status    cache.Status `json:"status"`
	Age       string       `json:"age"`
	FetchedAt *time.Time   `json:"fetchedAt,omitempty"`
}

func cacheInfo[T any](res cache.Result[T]) CacheInfo {
	info := CacheInfo{Status: res.Status, Age: res.Age.Round(time.Second).String()}
	if !res.FetchedAt.IsZero() {
		fetched := res.FetchedAt
		info.FetchedAt = &fetched
	}
	return info
}

// OccupancyReport is the cached result of one gate occupancy computation
type OccupancyReport struct {
	Date           string                `json:"date"`
	Gates          []models.GateSnapshot `json:"gates"`
	Summary        occupancy.Summary     `json:"summary"`
	ComputedAt     time.Time             `json:"computedAt"`
	ProcessingTime time.Duration         `json:"processingTime"`
}

func (r OccupancyReport) clone() OccupancyReport {
	out := r
	out.Gates = make([]models.GateSnapshot, len(r.Gates))
	for i, g := range r.Gates {
		g.ScheduledFlights = append([]models.FlightSummary(nil), g.ScheduledFlights...)
		out.Gates[i] = g
	}
	out.Summary.ByStatus = make(map[models.GateStatus]int, len(r.Summary.ByStatus))
	for k, v := range r.Summary.ByStatus {
		out.Summary.ByStatus[k] = v
	}
	return out
}
