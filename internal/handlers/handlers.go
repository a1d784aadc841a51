package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/pipeline"
	"flight-dashboard/internal/service"
)

// FlightService is the behaviour the handlers need from the service layer
type FlightService interface {
	Flights(ctx context.Context, q service.FlightsQuery) (*service.FlightsResult, error)
	Dashboard(ctx context.Context, date string) (*service.Dashboard, error)
	GateOccupancy(ctx context.Context, date string) (*service.GateOccupancy, error)
	FlightState(ctx context.Context, flightName, date string) (*service.FlightState, error)
	ClearCache(ctx context.Context, keys ...string) error
	CacheStats() []cache.EntryInfo
}

// Pinger is a dependency checked by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// FlightHandler handles the flight dashboard HTTP API
type FlightHandler struct {
	service FlightService
	mirror  Pinger
	logger  *zap.Logger
}

// NewFlightHandler creates a new handler. mirror may be nil.
func NewFlightHandler(svc FlightService, mirror Pinger, logger *zap.Logger) *FlightHandler {
	return &FlightHandler{
		service: svc,
		mirror:  mirror,
		logger:  logger,
	}
}

// Register mounts the API routes on group
func (h *FlightHandler) Register(group *gin.RouterGroup) {
	group.GET("/flights", h.GetFlights)
	group.GET("/flights/:flightName/state", h.GetFlightState)
	group.GET("/dashboard", h.GetDashboard)
	group.GET("/gates/occupancy", h.GetGateOccupancy)

	cacheGroup := group.Group("/cache")
	{
		cacheGroup.GET("/stats", h.GetCacheStats)
		cacheGroup.DELETE("", h.ClearCache)
		cacheGroup.DELETE("/:key", h.ClearCacheKey)
	}
}

// respondError maps service errors onto HTTP statuses
func (h *FlightHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidScheduleDate),
		errors.Is(err, service.ErrInvalidProfile),
		errors.Is(err, service.ErrInvalidDirection),
		errors.Is(err, service.ErrInvalidAirline):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrFlightNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrFlightsUnavailable):
		c.JSON(http.StatusAccepted, gin.H{"processing": true, "message": "flight data is being fetched, retry shortly"})
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// GetFlights handles GET /flights
func (h *FlightHandler) GetFlights(c *gin.Context) {
	q := service.FlightsQuery{
		Direction:  c.Query("direction"),
		Date:       c.Query("date"),
		Airline:    c.Query("airline"),
		PrefixICAO: c.Query("prefixicao"),
		Profile:    c.Query("profile"),
	}
	if raw := c.Query("operational"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operational flag"})
			return
		}
		q.Operational = pipeline.Operational(v)
	}

	res, err := h.service.Flights(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Processing {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

// GetFlightState handles GET /flights/:flightName/state
func (h *FlightHandler) GetFlightState(c *gin.Context) {
	name := strings.TrimSpace(c.Param("flightName"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flight name is required"})
		return
	}

	state, err := h.service.FlightState(c.Request.Context(), name, c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetDashboard handles GET /dashboard
func (h *FlightHandler) GetDashboard(c *gin.Context) {
	dash, err := h.service.Dashboard(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if dash.Processing {
		status = http.StatusAccepted
	}
	c.JSON(status, dash)
}

// GetGateOccupancy handles GET /gates/occupancy
func (h *FlightHandler) GetGateOccupancy(c *gin.Context) {
	res, err := h.service.GateOccupancy(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Processing {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

// ClearCache handles DELETE /cache
func (h *FlightHandler) ClearCache(c *gin.Context) {
	if err := h.service.ClearCache(c.Request.Context()); err != nil {
		h.logger.Error("failed to clear cache", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cache"})
		return
	}

	h.logger.Info("cache cleared via API")
	c.JSON(http.StatusOK, gin.H{"message": "cache cleared successfully"})
}

// ClearCacheKey handles DELETE /cache/:key
func (h *FlightHandler) ClearCacheKey(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	if err := h.service.ClearCache(c.Request.Context(), key); err != nil {
		h.logger.Error("failed to clear cache key", zap.Error(err), zap.String("key", key))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear cache key"})
		return
	}

	h.logger.Debug("cache key cleared via API", zap.String("key", key))
	c.JSON(http.StatusOK, gin.H{"message": "cache key cleared successfully", "key": key})
}

// GetCacheStats handles GET /cache/stats
func (h *FlightHandler) GetCacheStats(c *gin.Context) {
	stats := h.service.CacheStats()

	entries := make([]gin.H, 0, len(stats))
	for _, s := range stats {
		entries = append(entries, gin.H{
			"key":        s.Key,
			"fetched_at": s.FetchedAt,
			"age":        s.Age.Round(time.Second).String(),
			"ttl":        s.TTL.String(),
			"remaining":  s.Remaining.Round(time.Second).String(),
			"fresh":      s.Fresh,
			"refreshing": s.Refreshing,
			"background": s.Background,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// Health handles GET /health
func (h *FlightHandler) Health(c *gin.Context) {
	if h.mirror != nil {
		if err := h.mirror.Ping(c.Request.Context()); err != nil {
			h.logger.Error("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"cached_keys": len(h.service.CacheStats()),
		"mirror":      h.mirror != nil,
		"timestamp":   time.Now(),
	})
}

// Ping handles GET /ping
func (h *FlightHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
