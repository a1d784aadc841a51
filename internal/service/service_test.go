package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/pipeline"
	"flight-dashboard/internal/schiphol"
	"flight-dashboard/pkg/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, schiphol.Amsterdam)

func ptr[T any](v T) *T {
	return &v
}

func departure(name string, number int, gate string, scheduled time.Time, updated time.Time, states ...string) models.Flight {
	f := models.Flight{
		FlightName:        name,
		FlightNumber:      number,
		PrefixICAO:        "KLM",
		FlightDirection:   models.DirectionDeparture,
		ScheduleDateTime:  scheduled,
		LastUpdatedAt:     ptr(updated),
		Pier:              "D",
		PublicFlightState: models.PublicFlightState{FlightStates: states},
	}
	if gate != "" {
		f.Gate = ptr(gate)
	}
	return f
}

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	configs []schiphol.FetchConfig
	flights []models.Flight
	byDate  map[string][]models.Flight
	err     error
	block   chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, fc schiphol.FetchConfig) (*schiphol.FlightSet, error) {
	f.mu.Lock()
	f.calls++
	f.configs = append(f.configs, fc)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &schiphol.FlightSet{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return &schiphol.FlightSet{}, &schiphol.PageError{Page: 0, Err: f.err}
	}
	flights := f.flights
	if f.byDate != nil {
		flights = f.byDate[fc.Date]
	}
	return &schiphol.FlightSet{Flights: models.CloneFlights(flights), Pages: 2}, nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSnapshots struct {
	deleted [][]string
}

func (f *fakeSnapshots) Delete(_ context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys)
	return nil
}

func setupTestService(t *testing.T, source *fakeSource) (*FlightService, *fakeClock) {
	clock := &fakeClock{now: now}
	cfg := cache.DefaultCacheConfig()
	cfg.ForegroundTimeout = time.Second
	cfg.FetchTimeout = 2 * time.Second

	svc := NewFlightService(source, Options{
		Cache: cfg,
		Now:   clock.Now,
	}, zaptest.NewLogger(t))
	t.Cleanup(svc.Stop)
	return svc, clock
}

func standardFlights() []models.Flight {
	return []models.Flight{
		departure("KL1001", 1001, "D1", now.Add(30*time.Minute), now.Add(-time.Minute), "BRD"),
		departure("KL1002", 1002, "D2", now.Add(45*time.Minute), now.Add(-time.Minute), "DEL"),
		departure("KL1003", 1003, "D3", now.Add(3*time.Hour), now.Add(-30*time.Hour), "SCH"),
		departure("KL1004", 1004, "D4", now.Add(2*time.Hour), now.Add(-30*time.Hour), "CNX"),
		departure("KL1001", 1001, "D1", now.Add(30*time.Minute), now.Add(-time.Hour), "SCH"),
	}
}

func names(flights []models.DisplayFlight) []string {
	out := make([]string, 0, len(flights))
	for _, f := range flights {
		out = append(out, f.FlightName)
	}
	return out
}

func TestFlightService_FlightsInteractive(t *testing.T) {
	source := &fakeSource{flights: standardFlights()}
	svc, _ := setupTestService(t, source)

	res, err := svc.Flights(context.Background(), FlightsQuery{})
	require.NoError(t, err)

	assert.False(t, res.Processing)
	assert.Equal(t, cache.StatusMiss, res.Cache.Status)
	assert.Equal(t, "2024-05-01", res.Date)
	assert.Equal(t, ProfileInteractive, res.Profile)
	// KL1003 is 30h old; cancelled KL1004 is kept for today
	assert.Equal(t, []string{"KL1001", "KL1002", "KL1004"}, names(res.Flights))
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []string{"BRD"}, res.Flights[0].PublicFlightState.FlightStates, "dedupe keeps the newest update")
	assert.True(t, res.Flights[2].IsCancelled)

	require.Len(t, source.configs, 1)
	assert.Equal(t, schiphol.FetchConfig{Direction: "D", Airline: "KL", Date: "2024-05-01"}, source.configs[0])
}

func TestFlightService_FlightsAnalytical(t *testing.T) {
	source := &fakeSource{flights: standardFlights()}
	svc, _ := setupTestService(t, source)

	res, err := svc.Flights(context.Background(), FlightsQuery{Profile: ProfileAnalytical})
	require.NoError(t, err)
	assert.Equal(t, []string{"KL1001", "KL1002", "KL1003", "KL1004"}, names(res.Flights))
}

func TestFlightService_FlightsCachedAcrossCalls(t *testing.T) {
	source := &fakeSource{flights: standardFlights()}
	svc, _ := setupTestService(t, source)
	ctx := context.Background()

	_, err := svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	res, err := svc.Flights(ctx, FlightsQuery{Date: "2024-05-01", Profile: ProfileAnalytical})
	require.NoError(t, err)

	assert.Equal(t, cache.StatusHit, res.Cache.Status)
	assert.Equal(t, 1, source.callCount(), "both profiles read the same cached set")
}

func TestFlightService_FlightsValidation(t *testing.T) {
	svc, _ := setupTestService(t, &fakeSource{})
	ctx := context.Background()

	_, err := svc.Flights(ctx, FlightsQuery{Date: "01-05-2024"})
	assert.ErrorIs(t, err, pipeline.ErrInvalidScheduleDate)

	_, err = svc.Flights(ctx, FlightsQuery{Profile: "realtime"})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = svc.Flights(ctx, FlightsQuery{Direction: "X"})
	assert.ErrorIs(t, err, ErrInvalidDirection)

	for _, airline := range []string{"KLM", "K", "K!", "../KL"} {
		_, err = svc.Flights(ctx, FlightsQuery{Airline: airline})
		assert.ErrorIs(t, err, ErrInvalidAirline, airline)
	}
}

func TestFlightService_AirlineIsUppercased(t *testing.T) {
	source := &fakeSource{flights: standardFlights()}
	svc, _ := setupTestService(t, source)

	_, err := svc.Flights(context.Background(), FlightsQuery{Airline: "kl"})
	require.NoError(t, err)
	require.Len(t, source.configs, 1)
	assert.Equal(t, "KL", source.configs[0].Airline)
}

func setupMidnightService(t *testing.T) (*FlightService, *fakeClock, *fakeSource) {
	beforeMidnight := time.Date(2024, 5, 1, 23, 58, 0, 0, schiphol.Amsterdam)
	afterMidnight := beforeMidnight.Add(3 * time.Minute)
	source := &fakeSource{byDate: map[string][]models.Flight{
		"2024-05-01": {departure("KL1601", 1601, "D1", beforeMidnight.Add(-20*time.Minute), beforeMidnight.Add(-time.Hour), "SCH")},
		"2024-05-02": {departure("KL1602", 1602, "D2", afterMidnight.Add(7*time.Hour), beforeMidnight.Add(-time.Hour), "SCH")},
	}}
	svc, clock := setupTestService(t, source)
	clock.now = beforeMidnight
	return svc, clock, source
}

func TestFlightService_TodayRollsOverAtMidnight(t *testing.T) {
	svc, clock, source := setupMidnightService(t)
	ctx := context.Background()

	res, err := svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", res.Date)
	assert.Equal(t, []string{"KL1601"}, names(res.Flights))

	clock.Advance(3 * time.Minute)
	res, err = svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", res.Date)
	assert.Equal(t, []string{"KL1602"}, names(res.Flights))
	assert.Equal(t, cache.StatusMiss, res.Cache.Status)
	assert.Equal(t, 2, source.callCount())
	assert.Equal(t, "2024-05-02", source.configs[1].Date)

	res, err = svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	assert.Equal(t, cache.StatusHit, res.Cache.Status)
	assert.Equal(t, 2, source.callCount())
}

func TestFlightService_PreviousDaySetIsNotServedAsToday(t *testing.T) {
	svc, clock, source := setupMidnightService(t)
	ctx := context.Background()

	_, err := svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	source.setErr(errors.New("connection refused"))

	res, err := svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	assert.True(t, res.Processing)
	assert.Equal(t, cache.StatusProcessing, res.Cache.Status)
	assert.Empty(t, res.Flights)

	_, err = svc.FlightState(ctx, "KL1601", "")
	assert.ErrorIs(t, err, ErrFlightsUnavailable)
}

func TestFlightService_FlightsProcessingThenStale(t *testing.T) {
	upstreamErr := errors.New("connection refused")
	source := &fakeSource{flights: standardFlights(), err: upstreamErr}
	svc, clock := setupTestService(t, source)
	ctx := context.Background()

	res, err := svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	assert.True(t, res.Processing)
	assert.Equal(t, cache.StatusProcessing, res.Cache.Status)
	assert.Empty(t, res.Flights)

	source.setErr(nil)
	_, err = svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)

	source.setErr(upstreamErr)
	clock.Advance(10 * time.Minute)
	res, err = svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	assert.False(t, res.Processing)
	assert.Equal(t, cache.StatusStale, res.Cache.Status)
	assert.Equal(t, "10m0s", res.Cache.Age)
	assert.NotEmpty(t, res.Flights)
}

func TestFlightService_FlightsOperationalAndPrefix(t *testing.T) {
	codeshare := departure("DL9401", 9401, "D1", now.Add(30*time.Minute), now, "SCH")
	codeshare.MainFlight = "KL1001"
	codeshare.PrefixICAO = "DAL"
	source := &fakeSource{flights: append(standardFlights(), codeshare)}
	svc, _ := setupTestService(t, source)

	res, err := svc.Flights(context.Background(), FlightsQuery{PrefixICAO: "KL"})
	require.NoError(t, err)
	assert.NotContains(t, names(res.Flights), "DL9401")

	res, err = svc.Flights(context.Background(), FlightsQuery{})
	require.NoError(t, err)
	assert.Contains(t, names(res.Flights), "DL9401")
}

func TestFlightService_FlightState(t *testing.T) {
	source := &fakeSource{flights: []models.Flight{
		departure("KL1001", 1001, "D1", now.Add(30*time.Minute), now, "DEL", "BRD"),
		departure("KL1002", 1002, "D2", now.Add(30*time.Minute), now, "DEL"),
	}}
	svc, _ := setupTestService(t, source)
	ctx := context.Background()

	state, err := svc.FlightState(ctx, "kl1001", "")
	require.NoError(t, err)
	assert.Equal(t, "KL1001", state.FlightName)
	assert.Equal(t, "BRD", state.State)
	assert.Equal(t, "Boarding", state.Description)
	assert.False(t, state.IsDelayed)
	assert.Equal(t, "D1", state.Gate)

	state, err = svc.FlightState(ctx, "KL1002", "")
	require.NoError(t, err)
	assert.Equal(t, "DEL", state.State)
	assert.True(t, state.IsDelayed)

	_, err = svc.FlightState(ctx, "KL9999", "")
	assert.ErrorIs(t, err, ErrFlightNotFound)
}

func TestFlightService_FlightStateUnavailable(t *testing.T) {
	source := &fakeSource{err: errors.New("timeout")}
	svc, _ := setupTestService(t, source)

	_, err := svc.FlightState(context.Background(), "KL1001", "")
	assert.ErrorIs(t, err, ErrFlightsUnavailable)
}

func TestFlightService_Dashboard(t *testing.T) {
	late := departure("KL1002", 1002, "D2", now.Add(45*time.Minute), now, "DEL")
	late.PublicEstimatedOffBlockTime = ptr(now.Add(75 * time.Minute))
	source := &fakeSource{flights: []models.Flight{
		departure("KL1001", 1001, "D1", now.Add(30*time.Minute), now, "BRD"),
		late,
		departure("KL1004", 1004, "D4", now.Add(2*time.Hour), now, "CNX"),
	}}
	svc, _ := setupTestService(t, source)

	dash, err := svc.Dashboard(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 3, dash.Count)
	assert.Equal(t, map[string]int{"BRD": 1, "DEL": 1, "CNX": 1}, dash.StateCounts)
	require.Len(t, dash.Delayed, 1)
	assert.Equal(t, "KL1002", dash.Delayed[0].FlightName)
	assert.Equal(t, 30, dash.Delayed[0].DelayMinutes)
	assert.Equal(t, 3, dash.Gates.Gates)
	assert.Equal(t, 1, dash.Gates.Cancelled)
	assert.Equal(t, 1, dash.Gates.ByStatus[models.GateOccupied])
}

func TestFlightService_GateOccupancyLifecycle(t *testing.T) {
	source := &fakeSource{flights: standardFlights(), block: make(chan struct{})}
	svc, clock := setupTestService(t, source)
	ctx := context.Background()

	res, err := svc.GateOccupancy(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.True(t, res.Processing)
	assert.Equal(t, JobStarted, res.Status)
	assert.Empty(t, res.Gates)

	res, err = svc.GateOccupancy(ctx, "")
	require.NoError(t, err)
	assert.True(t, res.Processing)
	assert.Equal(t, JobProcessing, res.Status)

	close(source.block)
	require.Eventually(t, func() bool {
		res, err = svc.GateOccupancy(ctx, "")
		return err == nil && res.Cached
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, res.Processing)
	assert.False(t, res.Stale)
	assert.NotEmpty(t, res.ProcessingTime)
	require.NotNil(t, res.Summary)
	ids := make([]string, 0, len(res.Gates))
	for _, g := range res.Gates {
		ids = append(ids, g.GateID)
	}
	assert.Equal(t, []string{"D1", "D2", "D4"}, ids)
	assert.Equal(t, models.GateOccupied, res.Gates[0].Status)

	clock.Advance(2 * time.Minute)
	res, err = svc.GateOccupancy(ctx, "")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.True(t, res.Stale)
	assert.Equal(t, JobRefreshing, res.Status)

	require.Eventually(t, func() bool { return !svc.gates.Refreshing(gatesKey("2024-05-01")) }, 2*time.Second, 5*time.Millisecond)
}

func TestFlightService_GateOccupancyInvalidDate(t *testing.T) {
	svc, _ := setupTestService(t, &fakeSource{})

	_, err := svc.GateOccupancy(context.Background(), "yesterday")
	assert.ErrorIs(t, err, pipeline.ErrInvalidScheduleDate)
}

func TestFlightService_ClearCacheAndStats(t *testing.T) {
	source := &fakeSource{flights: standardFlights()}
	snapshots := &fakeSnapshots{}
	clock := &fakeClock{now: now}
	svc := NewFlightService(source, Options{Snapshot: snapshots, Now: clock.Now}, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.Flights(ctx, FlightsQuery{})
	require.NoError(t, err)
	_, err = svc.Flights(ctx, FlightsQuery{Date: "2024-05-02"})
	require.NoError(t, err)

	stats := svc.CacheStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "flights:D:KL:2024-05-02", stats[0].Key)
	assert.Equal(t, "flights:D:KL:today", stats[1].Key)

	require.NoError(t, svc.ClearCache(ctx, "flights:D:KL:today"))
	require.Len(t, svc.CacheStats(), 1)

	require.NoError(t, svc.ClearCache(ctx))
	assert.Empty(t, svc.CacheStats())
	assert.Equal(t, [][]string{{"flights:D:KL:today"}, nil}, snapshots.deleted)
}

func TestFlightService_StartWarmsToday(t *testing.T) {
	source := &fakeSource{flights: standardFlights()}
	svc, _ := setupTestService(t, source)

	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, func() bool { return source.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(svc.CacheStats()) == 1 }, time.Second, 5*time.Millisecond)

	stats := svc.CacheStats()
	assert.Equal(t, "flights:D:KL:today", stats[0].Key)
	assert.True(t, stats[0].Background)
}
