package models

import (
	"time"
)

// Flight directions as used by the Schiphol API
const (
	DirectionDeparture = "D"
	DirectionArrival   = "A"
)

// GateTBD is the sentinel gate value for a gate that is not assigned yet
const GateTBD = "TBD"

// DateLayout is the calendar date format used for schedule dates
const DateLayout = "2006-01-02"

// AircraftType identifies the equipment flying a flight
type AircraftType struct {
	IATAMain string `json:"iataMain"`
	IATASub  string `json:"iataSub"`
}

// PublicFlightState holds the state codes a flight currently carries
type PublicFlightState struct {
	FlightStates []string `json:"flightStates"`
}

// Route lists the destinations of a flight, the first one is the next stop
type Route struct {
	Destinations []string `json:"destinations"`
}

// Flight is the canonical record for one scheduled movement
type Flight struct {
	FlightNumber    int    `json:"flightNumber"`
	FlightName      string `json:"flightName"`
	MainFlight      string `json:"mainFlight,omitempty"`
	PrefixIATA      string `json:"prefixIATA,omitempty"`
	PrefixICAO      string `json:"prefixICAO,omitempty"`
	FlightDirection string `json:"flightDirection"`

	ScheduleDateTime            time.Time  `json:"scheduleDateTime"`
	PublicEstimatedOffBlockTime *time.Time `json:"publicEstimatedOffBlockTime"`
	ActualOffBlockTime          *time.Time `json:"actualOffBlockTime"`
	LastUpdatedAt               *time.Time `json:"lastUpdatedAt"`

	Gate              *string           `json:"gate"`
	Pier              string            `json:"pier,omitempty"`
	AircraftType      AircraftType      `json:"aircraftType"`
	PublicFlightState PublicFlightState `json:"publicFlightState"`
	Route             Route             `json:"route"`
}

// LocalDate returns the calendar date of the scheduled time in its own zone
func (f Flight) LocalDate() string {
	if f.ScheduleDateTime.IsZero() {
		return ""
	}
	return f.ScheduleDateTime.Format(DateLayout)
}

// HasState reports whether the flight carries the given state code
func (f Flight) HasState(code string) bool {
	for _, s := range f.PublicFlightState.FlightStates {
		if s == code {
			return true
		}
	}
	return false
}

// IsCodeshare reports whether the flight is marketed under its name but
// operated as a different main flight.
func (f Flight) IsCodeshare() bool {
	return f.MainFlight != "" && f.MainFlight != f.FlightName
}

// Destination returns the immediate destination, or "" when unknown
func (f Flight) Destination() string {
	if len(f.Route.Destinations) == 0 {
		return ""
	}
	return f.Route.Destinations[0]
}

// GateValue returns the gate or "" when none is set
func (f Flight) GateValue() string {
	if f.Gate == nil {
		return ""
	}
	return *f.Gate
}

// Clone returns a deep copy so callers can derive new records without
// touching a shared one.
func (f Flight) Clone() Flight {
	out := f
	out.PublicEstimatedOffBlockTime = cloneTime(f.PublicEstimatedOffBlockTime)
	out.ActualOffBlockTime = cloneTime(f.ActualOffBlockTime)
	out.LastUpdatedAt = cloneTime(f.LastUpdatedAt)
	out.Gate = cloneString(f.Gate)
	if f.PublicFlightState.FlightStates != nil {
		out.PublicFlightState.FlightStates = append([]string(nil), f.PublicFlightState.FlightStates...)
	}
	if f.Route.Destinations != nil {
		out.Route.Destinations = append([]string(nil), f.Route.Destinations...)
	}
	return out
}

// CloneFlights deep copies a flight collection
func CloneFlights(flights []Flight) []Flight {
	if flights == nil {
		return nil
	}
	out := make([]Flight, len(flights))
	for i := range flights {
		out[i] = flights[i].Clone()
	}
	return out
}

// DisplayFlight is a flight with the fields derived for display
type DisplayFlight struct {
	Flight
	IsCancelled  bool    `json:"isCancelled"`
	OriginalGate *string `json:"originalGate,omitempty"`
}

// EffectiveGate returns the gate the flight belongs to, using the
// pre-cancellation gate for cancelled flights.
func (d DisplayFlight) EffectiveGate() string {
	if d.IsCancelled {
		if d.OriginalGate == nil {
			return ""
		}
		return *d.OriginalGate
	}
	return d.GateValue()
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
