package schiphol

import (
	"time"
	_ "time/tzdata"

	"flight-dashboard/pkg/models"
)

// Amsterdam is the zone Schiphol schedules are published in
var Amsterdam = loadAmsterdam()

func loadAmsterdam() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// Normalize maps a raw upstream record onto the canonical Flight. It never
// fails: missing optional fields become nil or empty and unparsable
// timestamps become nil (or the zero time for the schedule).
func Normalize(raw RawFlight) models.Flight {
	f := models.Flight{
		FlightNumber:    raw.FlightNumber,
		FlightName:      raw.FlightName,
		PrefixIATA:      raw.PrefixIATA,
		PrefixICAO:      raw.PrefixICAO,
		FlightDirection: raw.FlightDirection,

		PublicEstimatedOffBlockTime: parseOptional(raw.PublicEstimatedOffBlockTime),
		ActualOffBlockTime:          parseOptional(raw.ActualOffBlockTime),
		LastUpdatedAt:               parseOptional(raw.LastUpdatedAt),
	}

	if raw.MainFlight != nil {
		f.MainFlight = *raw.MainFlight
	}
	if raw.Gate != nil {
		gate := *raw.Gate
		f.Gate = &gate
	}
	if raw.Pier != nil {
		f.Pier = *raw.Pier
	}
	if raw.AircraftType != nil {
		f.AircraftType = models.AircraftType{
			IATAMain: raw.AircraftType.IATAMain,
			IATASub:  raw.AircraftType.IATASub,
		}
	}
	if raw.PublicFlightState != nil && raw.PublicFlightState.FlightStates != nil {
		f.PublicFlightState.FlightStates = append([]string(nil), raw.PublicFlightState.FlightStates...)
	}
	if raw.Route != nil && raw.Route.Destinations != nil {
		f.Route.Destinations = append([]string(nil), raw.Route.Destinations...)
	}

	if t, ok := parseTimestamp(raw.ScheduleDateTime); ok {
		f.ScheduleDateTime = t
	} else if raw.ScheduleDate != "" && raw.ScheduleTime != "" {
		if t, ok := parseTimestamp(raw.ScheduleDate + "T" + raw.ScheduleTime); ok {
			f.ScheduleDateTime = t
		}
	}

	return f
}

// NormalizeAll normalizes every record, keeping order and count
func NormalizeAll(raws []RawFlight) []models.Flight {
	out := make([]models.Flight, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

// Problems lists the expected fields a raw record is missing. The record is
// still normalized; the list only feeds diagnostics.
func Problems(raw RawFlight) []string {
	var problems []string
	if raw.FlightName == "" {
		problems = append(problems, "flightName")
	}
	if raw.FlightNumber == 0 {
		problems = append(problems, "flightNumber")
	}
	if _, ok := parseTimestamp(raw.ScheduleDateTime); !ok {
		problems = append(problems, "scheduleDateTime")
	}
	if raw.LastUpdatedAt == nil {
		problems = append(problems, "lastUpdatedAt")
	} else if _, ok := parseTimestamp(*raw.LastUpdatedAt); !ok {
		problems = append(problems, "lastUpdatedAt")
	}
	if raw.PublicFlightState == nil {
		problems = append(problems, "publicFlightState")
	}
	return problems
}

func parseOptional(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := parseTimestamp(*s)
	if !ok {
		return nil
	}
	return &t
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, Amsterdam); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
