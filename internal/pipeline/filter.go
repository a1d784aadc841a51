// Package pipeline holds the passes applied to a fetched flight collection:
// attribute filtering, duplicate removal and staleness removal. Every pass
// returns a new slice and leaves its input untouched.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"flight-dashboard/internal/flightstate"
	"flight-dashboard/pkg/models"
)

// ErrInvalidScheduleDate is returned for a schedule date that is not YYYY-MM-DD
var ErrInvalidScheduleDate = errors.New("invalid schedule date")

// Criteria selects flights. Zero-valued fields do not filter.
type Criteria struct {
	FlightDirection     string
	ScheduleDate        string
	IsOperationalFlight *bool
	PrefixICAO          string
}

// Validate checks the criteria for caller mistakes
func (c Criteria) Validate() error {
	if c.ScheduleDate == "" {
		return nil
	}
	if _, err := time.Parse(models.DateLayout, c.ScheduleDate); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidScheduleDate, c.ScheduleDate)
	}
	return nil
}

// Operational is a helper for the IsOperationalFlight criterion
func Operational(v bool) *bool {
	return &v
}

// FilterFlights returns the flights matching every set criterion
func FilterFlights(flights []models.Flight, criteria Criteria) ([]models.Flight, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	out := make([]models.Flight, 0, len(flights))
	for _, f := range flights {
		if criteria.matches(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (c Criteria) matches(f models.Flight) bool {
	if c.FlightDirection != "" && f.FlightDirection != c.FlightDirection {
		return false
	}
	if c.ScheduleDate != "" && f.LocalDate() != c.ScheduleDate {
		return false
	}
	if c.IsOperationalFlight != nil && *c.IsOperationalFlight && f.HasState(flightstate.Cancelled) {
		return false
	}
	if c.PrefixICAO != "" && !strings.HasPrefix(f.FlightName, c.PrefixICAO) && f.IsCodeshare() {
		return false
	}
	return true
}
