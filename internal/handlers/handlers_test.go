package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/pipeline"
	"flight-dashboard/internal/service"
	"flight-dashboard/pkg/models"
)

type fakeService struct {
	lastQuery  service.FlightsQuery
	flights    *service.FlightsResult
	flightsErr error
	occupancy  *service.GateOccupancy
	state      *service.FlightState
	stateErr   error
	dashboard  *service.Dashboard
	cleared    [][]string
	clearErr   error
	stats      []cache.EntryInfo
}

func (f *fakeService) Flights(_ context.Context, q service.FlightsQuery) (*service.FlightsResult, error) {
	f.lastQuery = q
	return f.flights, f.flightsErr
}

func (f *fakeService) Dashboard(_ context.Context, date string) (*service.Dashboard, error) {
	if date == "bad" {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrInvalidScheduleDate, date)
	}
	return f.dashboard, nil
}

func (f *fakeService) GateOccupancy(_ context.Context, date string) (*service.GateOccupancy, error) {
	return f.occupancy, nil
}

func (f *fakeService) FlightState(_ context.Context, flightName, date string) (*service.FlightState, error) {
	return f.state, f.stateErr
}

func (f *fakeService) ClearCache(_ context.Context, keys ...string) error {
	f.cleared = append(f.cleared, keys)
	return f.clearErr
}

func (f *fakeService) CacheStats() []cache.EntryInfo {
	return f.stats
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}

func setupTestServer(t *testing.T, svc *fakeService, mirror Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewFlightHandler(svc, mirror, zaptest.NewLogger(t))
	h.Register(router.Group("/api/v1"))
	router.GET("/health", h.Health)
	router.GET("/ping", h.Ping)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAPI_GetFlights(t *testing.T) {
	gate := "D1"
	svc := &fakeService{flights: &service.FlightsResult{
		Flights: []models.DisplayFlight{{Flight: models.Flight{FlightName: "KL1001", Gate: &gate}}},
		Count:   1,
		Date:    "2024-05-01",
		Profile: service.ProfileInteractive,
		Cache:   service.CacheInfo{Status: cache.StatusHit, Age: "12s"},
	}}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/flights?direction=D&date=2024-05-01&airline=KL&operational=true&prefixicao=KL&profile=analytical")
	assert.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "hit", body["cache"].(map[string]interface{})["status"])
	flights := body["flights"].([]interface{})
	require.Len(t, flights, 1)
	assert.Equal(t, "KL1001", flights[0].(map[string]interface{})["flightName"])

	assert.Equal(t, "D", svc.lastQuery.Direction)
	assert.Equal(t, "2024-05-01", svc.lastQuery.Date)
	assert.Equal(t, "KL", svc.lastQuery.Airline)
	assert.Equal(t, "KL", svc.lastQuery.PrefixICAO)
	assert.Equal(t, "analytical", svc.lastQuery.Profile)
	require.NotNil(t, svc.lastQuery.Operational)
	assert.True(t, *svc.lastQuery.Operational)
}

func TestAPI_GetFlightsProcessing(t *testing.T) {
	svc := &fakeService{flights: &service.FlightsResult{
		Flights:    []models.DisplayFlight{},
		Processing: true,
		Cache:      service.CacheInfo{Status: cache.StatusProcessing},
	}}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/flights")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["processing"])
}

func TestAPI_GetFlightsBadRequest(t *testing.T) {
	svc := &fakeService{flightsErr: fmt.Errorf("%w: %q", pipeline.ErrInvalidScheduleDate, "2024-13-40")}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/flights?date=2024-13-40")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid schedule date")

	w = doRequest(router, http.MethodGet, "/api/v1/flights?operational=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.flightsErr = fmt.Errorf("%w: %q", service.ErrInvalidAirline, "KLM")
	w = doRequest(router, http.MethodGet, "/api/v1/flights?airline=KLM")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid airline code")
}

func TestAPI_GetFlightsInternalError(t *testing.T) {
	svc := &fakeService{flightsErr: errors.New("boom")}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/flights")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["error"])
}

func TestAPI_GetGateOccupancy(t *testing.T) {
	t.Run("placeholder", func(t *testing.T) {
		svc := &fakeService{occupancy: &service.GateOccupancy{
			Date:       "2024-05-01",
			Gates:      []models.GateSnapshot{},
			Processing: true,
			Status:     service.JobStarted,
		}}
		router := setupTestServer(t, svc, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/gates/occupancy")
		assert.Equal(t, http.StatusAccepted, w.Code)

		body := decode(t, w)
		assert.Equal(t, false, body["cached"])
		assert.Equal(t, true, body["processing"])
		assert.Equal(t, "started", body["status"])
		assert.Empty(t, body["gates"])
	})

	t.Run("cached", func(t *testing.T) {
		svc := &fakeService{occupancy: &service.GateOccupancy{
			Date:           "2024-05-01",
			Gates:          []models.GateSnapshot{{GateID: "D1", Status: models.GateOccupied}},
			Cached:         true,
			Age:            "20s",
			ProcessingTime: "15ms",
		}}
		router := setupTestServer(t, svc, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/gates/occupancy")
		assert.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, true, body["cached"])
		assert.Equal(t, false, body["processing"])
		assert.Equal(t, "20s", body["age"])
		assert.Equal(t, "15ms", body["processingTime"])
		assert.Len(t, body["gates"], 1)
	})
}

func TestAPI_GetFlightState(t *testing.T) {
	svc := &fakeService{state: &service.FlightState{FlightName: "KL1001", State: "BRD", Description: "Boarding"}}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/flights/KL1001/state")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BRD", decode(t, w)["state"])

	svc.state, svc.stateErr = nil, fmt.Errorf("%w: KL9999", service.ErrFlightNotFound)
	w = doRequest(router, http.MethodGet, "/api/v1/flights/KL9999/state")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.stateErr = service.ErrFlightsUnavailable
	w = doRequest(router, http.MethodGet, "/api/v1/flights/KL1001/state")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["processing"])
}

func TestAPI_GetDashboard(t *testing.T) {
	svc := &fakeService{dashboard: &service.Dashboard{
		Date:        "2024-05-01",
		Flights:     []models.DisplayFlight{},
		Delayed:     []models.FlightSummary{},
		StateCounts: map[string]int{"BRD": 2},
	}}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/dashboard")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["stateCounts"].(map[string]interface{})["BRD"])

	w = doRequest(router, http.MethodGet, "/api/v1/dashboard?date=bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ClearCache(t *testing.T) {
	svc := &fakeService{}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodDelete, "/api/v1/cache/flights:D:KL:today")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "flights:D:KL:today", decode(t, w)["key"])

	w = doRequest(router, http.MethodDelete, "/api/v1/cache")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, svc.cleared, 2)
	assert.Equal(t, []string{"flights:D:KL:today"}, svc.cleared[0])
	assert.Empty(t, svc.cleared[1])

	svc.clearErr = errors.New("redis down")
	w = doRequest(router, http.MethodDelete, "/api/v1/cache")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPI_GetCacheStats(t *testing.T) {
	svc := &fakeService{stats: []cache.EntryInfo{{
		Key:        "flights:D:KL:today",
		FetchedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Age:        90 * time.Second,
		TTL:        5 * time.Minute,
		Remaining:  210 * time.Second,
		Fresh:      true,
		Background: true,
	}}}
	router := setupTestServer(t, svc, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	entry := body["entries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "flights:D:KL:today", entry["key"])
	assert.Equal(t, "1m30s", entry["age"])
	assert.Equal(t, "5m0s", entry["ttl"])
	assert.Equal(t, "3m30s", entry["remaining"])
	assert.Equal(t, true, entry["background"])
}

func TestAPI_Health(t *testing.T) {
	router := setupTestServer(t, &fakeService{}, fakePinger{})
	w := doRequest(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	router = setupTestServer(t, &fakeService{}, fakePinger{err: errors.New("connection refused")})
	w = doRequest(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["status"])

	w = doRequest(router, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decode(t, w)["message"])
}
