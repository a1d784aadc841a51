package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flight-dashboard/internal/cache"
	"flight-dashboard/internal/occupancy"
	"flight-dashboard/internal/schiphol"
	"flight-dashboard/pkg/models"
)

// Occupancy job states reported with a placeholder
const (
	JobStarted    = "started"
	JobProcessing = "processing"
	JobRefreshing = "refreshing"
)

// GateOccupancy is the gate occupancy response. Without a computed report
// it is a placeholder with Processing set and Status naming the job state.
type GateOccupancy struct {
	Date           string                `json:"date"`
	Gates          []models.GateSnapshot `json:"gates"`
	Summary        *occupancy.Summary    `json:"summary,omitempty"`
	Cached         bool                  `json:"cached"`
	Stale          bool                  `json:"stale,omitempty"`
	Processing     bool                  `json:"processing"`
	Status         string                `json:"status,omitempty"`
	Age            string                `json:"age,omitempty"`
	ProcessingTime string                `json:"processingTime,omitempty"`
}

// referenceTime is now for today, and the same wall clock time on any other
// date.
func (s *FlightService) referenceTime(date string) time.Time {
	now := s.now().In(schiphol.Amsterdam)
	day, err := time.ParseInLocation(models.DateLayout, date, schiphol.Amsterdam)
	if err != nil || date == now.Format(models.DateLayout) {
		return now
	}
	return time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), 0, schiphol.Amsterdam)
}

func (s *FlightService) occupancyFetcher(date string) cache.Fetcher[OccupancyReport] {
	return func(ctx context.Context) (OccupancyReport, error) {
		start := time.Now()
		q, policy, err := s.normalizeQuery(FlightsQuery{Date: date})
		if err != nil {
			return OccupancyReport{}, err
		}

		flights, res, err := s.loadFlights(ctx, q, policy)
		if err != nil {
			return OccupancyReport{}, err
		}
		if !res.Available() {
			return OccupancyReport{}, fmt.Errorf("%w: %v", ErrFlightsUnavailable, res.Err)
		}

		at := s.referenceTime(date)
		gates := occupancy.ComputeOccupancy(flights, at)
		report := OccupancyReport{
			Date:           date,
			Gates:          gates,
			Summary:        occupancy.Summarize(gates),
			ComputedAt:     at,
			ProcessingTime: time.Since(start),
		}
		s.logger.Info("gate occupancy computed",
			zap.String("date", date),
			zap.Int("gates", len(gates)),
			zap.Int("flights", len(flights)),
			zap.Duration("processing_time", report.ProcessingTime),
		)
		return report, nil
	}
}

// GateOccupancy returns the cached occupancy report for date. A fresh report
// is returned directly. Otherwise a background computation is started unless
// one is running; callers get the previous report marked stale, or a
// placeholder when there is none.
func (s *FlightService) GateOccupancy(ctx context.Context, date string) (*GateOccupancy, error) {
	date, err := s.resolveDate(date)
	if err != nil {
		return nil, err
	}

	key := gatesKey(date)
	now := s.now()
	entry, ok := s.gates.Peek(key)
	if ok && entry.IsFresh(now) {
		return reportView(entry, now, false, ""), nil
	}

	status := JobProcessing
	if s.gates.RefreshAsync(key, s.cacheCfg.OccupancyTTL, s.occupancyFetcher(date)) {
		status = JobStarted
		s.logger.Debug("gate occupancy job started", zap.String("date", date))
	}

	if ok {
		return reportView(entry, now, true, JobRefreshing), nil
	}
	return &GateOccupancy{
		Date:       date,
		Gates:      []models.GateSnapshot{},
		Cached:     false,
		Processing: true,
		Status:     status,
	}, nil
}

func reportView(entry *models.CacheEntry[OccupancyReport], now time.Time, stale bool, status string) *GateOccupancy {
	report := entry.Value
	summary := report.Summary
	return &GateOccupancy{
		Date:           report.Date,
		Gates:          report.Gates,
		Summary:        &summary,
		Cached:         true,
		Stale:          stale,
		Status:         status,
		Age:            entry.Age(now).Round(time.Second).String(),
		ProcessingTime: report.ProcessingTime.Round(time.Millisecond).String(),
	}
}

// ClearCache removes the given keys, or everything when none are given, from
// both caches and the snapshot store.
func (s *FlightService) ClearCache(ctx context.Context, keys ...string) error {
	s.flights.Clear(keys...)
	s.gates.Clear(keys...)

	if s.snapshot == nil {
		return nil
	}
	if err := s.snapshot.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}

// CacheStats describes every cached entry
func (s *FlightService) CacheStats() []cache.EntryInfo {
	stats := append(s.flights.Stats(), s.gates.Stats()...)
	if stats == nil {
		return []cache.EntryInfo{}
	}
	return stats
}
