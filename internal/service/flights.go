package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/flightstate"
	"flight-dashboard/internal/occupancy"
	"flight-dashboard/internal/pipeline"
	"flight-dashboard/pkg/models"
)

// FlightsQuery selects a flight list. Empty fields take the configured
// defaults: departures, today, the configured airline, interactive profile.
type FlightsQuery struct {
	Direction   string
	Date        string
	Airline     string
	Operational *bool
	PrefixICAO  string
	Profile     string
}

// FlightsResult is a filtered flight list. Processing is set when no data
// exists yet and a fetch is still running or failed.
type FlightsResult struct {
	Flights    []models.DisplayFlight `json:"flights"`
	Count      int                    `json:"count"`
	Date       string                 `json:"date"`
	Profile    string                 `json:"profile"`
	Processing bool                   `json:"processing"`
	Cache      CacheInfo              `json:"cache"`
}

func (s *FlightService) normalizeQuery(q FlightsQuery) (FlightsQuery, pipeline.StalenessPolicy, error) {
	if q.Direction == "" {
		q.Direction = models.DirectionDeparture
	}
	q.Direction = strings.ToUpper(q.Direction)
	if q.Direction != models.DirectionDeparture && q.Direction != models.DirectionArrival {
		return q, pipeline.StalenessPolicy{}, fmt.Errorf("%w: %q", ErrInvalidDirection, q.Direction)
	}
	if q.Airline == "" {
		q.Airline = s.config.Airline
	}
	if !airlineCode.MatchString(q.Airline) {
		return q, pipeline.StalenessPolicy{}, fmt.Errorf("%w: %q", ErrInvalidAirline, q.Airline)
	}
	q.Airline = strings.ToUpper(q.Airline)

	date, err := s.resolveDate(q.Date)
	if err != nil {
		return q, pipeline.StalenessPolicy{}, err
	}
	q.Date = date

	policy, err := s.policy(q.Profile)
	if err != nil {
		return q, pipeline.StalenessPolicy{}, err
	}
	q.Profile = policy.Name
	return q, policy, nil
}

// loadFlights reads the cached flight set for q and applies the pipeline. A
// set cached for another day (today's alias across midnight) is refetched,
// and reported as processing if no set for q.Date can be produced.
func (s *FlightService) loadFlights(ctx context.Context, q FlightsQuery, policy pipeline.StalenessPolicy) ([]models.Flight, cache.Result[flightSet], error) {
	ctx, cancel := context.WithTimeout(ctx, s.cacheCfg.ForegroundTimeout)
	defer cancel()

	key := s.flightsKey(q.Direction, q.Airline, q.Date)
	fetcher := s.flightFetcher(q.Direction, q.Airline, q.Date)
	res := s.flights.GetOrFetch(ctx, key, fetcher)
	if res.Available() && res.Value.Date != q.Date {
		s.logger.Info("cached flight set is for another date, refetching",
			zap.String("key", key),
			zap.String("cached_date", res.Value.Date),
			zap.String("date", q.Date),
		)
		res = s.flights.Refresh(ctx, key, fetcher)
		if res.Available() && res.Value.Date != q.Date {
			res = cache.Result[flightSet]{Status: cache.StatusProcessing, Err: res.Err}
		}
	}
	if !res.Available() {
		return nil, res, nil
	}

	flights, err := pipeline.Run(res.Value.Flights, pipeline.Criteria{
		FlightDirection:     q.Direction,
		ScheduleDate:        q.Date,
		IsOperationalFlight: q.Operational,
		PrefixICAO:          q.PrefixICAO,
	}, policy, s.now())
	if err != nil {
		return nil, res, err
	}
	return flights, res, nil
}

// Flights returns the filtered flight list for q
func (s *FlightService) Flights(ctx context.Context, q FlightsQuery) (*FlightsResult, error) {
	q, policy, err := s.normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	flights, res, err := s.loadFlights(ctx, q, policy)
	if err != nil {
		return nil, err
	}

	result := &FlightsResult{
		Flights:    pipeline.AnnotateCancellations(flights),
		Date:       q.Date,
		Profile:    q.Profile,
		Processing: !res.Available(),
		Cache:      cacheInfo(res),
	}
	result.Count = len(result.Flights)
	return result, nil
}

// FlightState is the resolved state of a single flight
type FlightState struct {
	FlightName  string   `json:"flightName"`
	Date        string   `json:"date"`
	States      []string `json:"states"`
	State       string   `json:"state"`
	Description string   `json:"description"`
	IsDelayed   bool     `json:"isDelayed"`
	IsCancelled bool     `json:"isCancelled"`
	Gate        string   `json:"gate,omitempty"`
	DelayMin    int      `json:"delayMinutes"`
}

// FlightState resolves the most significant state of one departure
func (s *FlightService) FlightState(ctx context.Context, flightName, date string) (*FlightState, error) {
	q, policy, err := s.normalizeQuery(FlightsQuery{Date: date})
	if err != nil {
		return nil, err
	}

	flights, res, err := s.loadFlights(ctx, q, policy)
	if err != nil {
		return nil, err
	}
	if !res.Available() {
		return nil, fmt.Errorf("%w: %v", ErrFlightsUnavailable, res.Err)
	}

	for _, d := range pipeline.AnnotateCancellations(flights) {
		if !strings.EqualFold(d.FlightName, flightName) {
			continue
		}
		states := append([]string(nil), d.PublicFlightState.FlightStates...)
		state := flightstate.MostSignificantState(states)
		return &FlightState{
			FlightName:  d.FlightName,
			Date:        q.Date,
			States:      states,
			State:       state,
			Description: flightstate.Describe(state),
			IsDelayed:   flightstate.IsEffectivelyDelayed(states),
			IsCancelled: d.IsCancelled,
			Gate:        d.EffectiveGate(),
			DelayMin:    int(occupancy.DisplayDelay(d.Flight).Minutes()),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrFlightNotFound, flightName, q.Date)
}

// Dashboard is the combined payload of the main dashboard view
type Dashboard struct {
	Date        string                 `json:"date"`
	Flights     []models.DisplayFlight `json:"flights"`
	Count       int                    `json:"count"`
	Delayed     []models.FlightSummary `json:"delayed"`
	StateCounts map[string]int         `json:"stateCounts"`
	Gates       occupancy.Summary      `json:"gates"`
	Processing  bool                   `json:"processing"`
	Cache       CacheInfo              `json:"cache"`
}

// Dashboard returns today's (or date's) departures with derived summaries
func (s *FlightService) Dashboard(ctx context.Context, date string) (*Dashboard, error) {
	q, policy, err := s.normalizeQuery(FlightsQuery{Date: date})
	if err != nil {
		return nil, err
	}

	flights, res, err := s.loadFlights(ctx, q, policy)
	if err != nil {
		return nil, err
	}

	display := pipeline.AnnotateCancellations(flights)
	dash := &Dashboard{
		Date:        q.Date,
		Flights:     display,
		Count:       len(display),
		Delayed:     []models.FlightSummary{},
		StateCounts: make(map[string]int),
		Processing:  !res.Available(),
		Cache:       cacheInfo(res),
	}
	for _, d := range display {
		summary := occupancy.SummarizeFlight(d)
		dash.StateCounts[summary.State]++
		if summary.IsDelayed {
			dash.Delayed = append(dash.Delayed, summary)
		}
	}
	sort.SliceStable(dash.Delayed, func(i, j int) bool {
		return dash.Delayed[i].DelayMinutes > dash.Delayed[j].DelayMinutes
	})
	dash.Gates = occupancy.Summarize(occupancy.ComputeOccupancy(flights, s.referenceTime(q.Date)))

	s.logger.Debug("dashboard built",
		zap.String("date", q.Date),
		zap.Int("flights", dash.Count),
		zap.Int("delayed", len(dash.Delayed)),
		zap.String("cache", string(res.Status)),
	)
	return dash, nil
}
