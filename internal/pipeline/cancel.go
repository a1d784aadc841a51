package pipeline

import (
	"flight-dashboard/internal/flightstate"
	"flight-dashboard/pkg/models"
)

// AnnotateCancellations derives the display fields. A cancelled flight gets
// IsCancelled, its gate moves to OriginalGate and Gate is cleared. The
// result holds copies; the input is not modified.
func AnnotateCancellations(flights []models.Flight) []models.DisplayFlight {
	out := make([]models.DisplayFlight, len(flights))
	for i, f := range flights {
		d := models.DisplayFlight{Flight: f.Clone()}
		if f.HasState(flightstate.Cancelled) {
			d.IsCancelled = true
			d.OriginalGate = d.Gate
			d.Gate = nil
		}
		out[i] = d
	}
	return out
}
