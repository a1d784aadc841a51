package occupancy

import (
	"math"

	"flight-dashboard/pkg/models"
)

// Summary aggregates a set of gate snapshots for the dashboard
type Summary struct {
	Gates               int                       `json:"gates"`
	ByStatus            map[models.GateStatus]int `json:"byStatus"`
	Flights             int                       `json:"flights"`
	Delayed             int                       `json:"delayed"`
	Cancelled           int                       `json:"cancelled"`
	AverageDelayMinutes float64                   `json:"averageDelayMinutes"`
}

// Summarize counts statuses and flights. The average delay uses the signed
// delay of every non-cancelled flight, so early departures pull it down.
func Summarize(snapshots []models.GateSnapshot) Summary {
	s := Summary{
		Gates:    len(snapshots),
		ByStatus: make(map[models.GateStatus]int),
	}

	var delaySum, delayCount int
	for _, snap := range snapshots {
		s.ByStatus[snap.Status]++
		for _, f := range snap.ScheduledFlights {
			s.Flights++
			if f.IsCancelled {
				s.Cancelled++
				continue
			}
			if f.IsDelayed {
				s.Delayed++
			}
			delaySum += f.SignedDelay
			delayCount++
		}
	}
	if delayCount > 0 {
		s.AverageDelayMinutes = math.Round(float64(delaySum)/float64(delayCount)*10) / 10
	}
	return s
}
