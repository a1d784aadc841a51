package occupancy

import (
	"time"

	"flight-dashboard/pkg/models"
)

// Delay is the signed difference between the realized (or estimated)
// off-block time and the schedule. Early departures are negative; a flight
// with neither time has no delay.
func Delay(f models.Flight) time.Duration {
	if f.ScheduleDateTime.IsZero() {
		return 0
	}
	switch {
	case f.ActualOffBlockTime != nil:
		return f.ActualOffBlockTime.Sub(f.ScheduleDateTime)
	case f.PublicEstimatedOffBlockTime != nil:
		return f.PublicEstimatedOffBlockTime.Sub(f.ScheduleDateTime)
	}
	return 0
}

// DisplayDelay is Delay floored at zero
func DisplayDelay(f models.Flight) time.Duration {
	if d := Delay(f); d > 0 {
		return d
	}
	return 0
}

// departureTime is the best known off-block time
func departureTime(f models.Flight) time.Time {
	if f.ActualOffBlockTime != nil {
		return *f.ActualOffBlockTime
	}
	if f.PublicEstimatedOffBlockTime != nil {
		return *f.PublicEstimatedOffBlockTime
	}
	return f.ScheduleDateTime
}
