package pipeline

import (
	"time"

	"flight-dashboard/pkg/models"
)

type flightKey struct {
	number int
	date   string
}

// RemoveDuplicateFlights collapses records of the same flight instance, same
// flight number on the same local date, into the most recently updated one.
// The surviving records keep the position of their key's first occurrence.
func RemoveDuplicateFlights(flights []models.Flight) []models.Flight {
	index := make(map[flightKey]int, len(flights))
	out := make([]models.Flight, 0, len(flights))

	for _, f := range flights {
		key := flightKey{number: f.FlightNumber, date: f.LocalDate()}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, f)
			continue
		}
		if newer(f.LastUpdatedAt, out[i].LastUpdatedAt) {
			out[i] = f
		}
	}
	return out
}

// newer reports whether a is strictly more recent than b; nil is oldest
func newer(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
