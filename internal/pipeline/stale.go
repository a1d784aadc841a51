package pipeline

import (
	"time"

	"flight-dashboard/internal/flightstate"
	"flight-dashboard/pkg/models"
)

// RemoveStaleFlights keeps flights updated within maxAge of now. A flight
// exactly maxAge old is kept; a flight without a usable LastUpdatedAt is
// dropped.
func RemoveStaleFlights(flights []models.Flight, maxAge time.Duration, now time.Time) []models.Flight {
	out := make([]models.Flight, 0, len(flights))
	for _, f := range flights {
		if isFresh(f, maxAge, now) {
			out = append(out, f)
		}
	}
	return out
}

func isFresh(f models.Flight, maxAge time.Duration, now time.Time) bool {
	if f.LastUpdatedAt == nil {
		return false
	}
	return now.Sub(*f.LastUpdatedAt) <= maxAge
}

// StalenessPolicy is the freshness rule a call site applies
type StalenessPolicy struct {
	Name               string
	MaxAge             time.Duration
	KeepCancelledToday bool
}

// Interactive returns the policy used by live views
func Interactive(maxAge time.Duration) StalenessPolicy {
	return StalenessPolicy{Name: "interactive", MaxAge: maxAge, KeepCancelledToday: true}
}

// Analytical returns the looser policy used by reporting views
func Analytical(maxAge time.Duration) StalenessPolicy {
	return StalenessPolicy{Name: "analytical", MaxAge: maxAge}
}

// Apply removes stale flights. With KeepCancelledToday, CNX flights scheduled
// on now's calendar day survive regardless of their update age.
func (p StalenessPolicy) Apply(flights []models.Flight, now time.Time) []models.Flight {
	if !p.KeepCancelledToday {
		return RemoveStaleFlights(flights, p.MaxAge, now)
	}

	out := make([]models.Flight, 0, len(flights))
	for _, f := range flights {
		if isFresh(f, p.MaxAge, now) || cancelledOnDay(f, now) {
			out = append(out, f)
		}
	}
	return out
}

func cancelledOnDay(f models.Flight, now time.Time) bool {
	if !f.HasState(flightstate.Cancelled) || f.ScheduleDateTime.IsZero() {
		return false
	}
	return f.LocalDate() == now.In(f.ScheduleDateTime.Location()).Format(models.DateLayout)
}

// Run applies filter, dedupe and staleness removal in that order
func Run(flights []models.Flight, criteria Criteria, policy StalenessPolicy, now time.Time) ([]models.Flight, error) {
	filtered, err := FilterFlights(flights, criteria)
	if err != nil {
		return nil, err
	}
	return policy.Apply(RemoveDuplicateFlights(filtered), now), nil
}
