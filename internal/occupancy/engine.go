// Package occupancy derives per-gate status from a flight set. It keeps no
// state of its own: the same (flights, now) always yields the same view.
package occupancy

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"flight-dashboard/internal/flightstate"
	"flight-dashboard/internal/pipeline"
	"flight-dashboard/pkg/models"
)

const (
	activeWindow   = 2 * time.Hour
	imminentWindow = time.Hour
	turnaround     = 45 * time.Minute
	dayStartHour   = 5
	dayEndHour     = 23
)

// ComputeOccupancy groups flights by gate and derives each gate's status at now
func ComputeOccupancy(flights []models.Flight, now time.Time) []models.GateSnapshot {
	byGate := make(map[string][]models.DisplayFlight)
	for _, d := range pipeline.AnnotateCancellations(flights) {
		gate := d.EffectiveGate()
		if gate == "" || gate == models.GateTBD {
			gate = models.NoGate
		}
		byGate[gate] = append(byGate[gate], d)
	}

	snapshots := make([]models.GateSnapshot, 0, len(byGate))
	for gate, gateFlights := range byGate {
		sort.SliceStable(gateFlights, func(i, j int) bool {
			return gateFlights[i].ScheduleDateTime.Before(gateFlights[j].ScheduleDateTime)
		})
		snapshots = append(snapshots, buildSnapshot(gate, gateFlights, now))
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return lessGate(snapshots[i].GateID, snapshots[j].GateID)
	})
	return snapshots
}

func buildSnapshot(gate string, flights []models.DisplayFlight, now time.Time) models.GateSnapshot {
	snap := models.GateSnapshot{
		GateID:           gate,
		ScheduledFlights: make([]models.FlightSummary, 0, len(flights)),
	}
	for _, d := range flights {
		if snap.Pier == "" {
			snap.Pier = d.Pier
		}
		snap.ScheduledFlights = append(snap.ScheduledFlights, summarize(d))
	}

	if gate == models.NoGate {
		snap.Status = models.GatePending
		return snap
	}

	snap.Status, snap.OccupiedBy = gateStatus(flights, now)
	snap.Utilization = utilization(flights, now)
	return snap
}

// gateStatus applies OCCUPIED > PREPARING > SCHEDULED > AVAILABLE over the
// flights scheduled within two hours of now. Cancelled and departed flights
// never qualify.
func gateStatus(flights []models.DisplayFlight, now time.Time) (models.GateStatus, *string) {
	var preparing, scheduled bool

	for _, d := range flights {
		if d.IsCancelled || d.ScheduleDateTime.IsZero() {
			continue
		}
		offset := d.ScheduleDateTime.Sub(now)
		if offset < -activeWindow || offset > activeWindow {
			continue
		}

		state := flightstate.MostSignificantState(d.PublicFlightState.FlightStates)
		if flightstate.IsGateActive(state) {
			name := d.FlightName
			return models.GateOccupied, &name
		}
		if state == flightstate.Departed || d.ActualOffBlockTime != nil {
			continue
		}
		if offset >= 0 && offset <= imminentWindow {
			preparing = true
		}
		scheduled = true
	}

	switch {
	case preparing:
		return models.GatePreparing, nil
	case scheduled:
		return models.GateScheduled, nil
	}
	return models.GateAvailable, nil
}

// SummarizeFlight returns the compact view of a single annotated flight
func SummarizeFlight(d models.DisplayFlight) models.FlightSummary {
	return summarize(d)
}

func summarize(d models.DisplayFlight) models.FlightSummary {
	states := d.PublicFlightState.FlightStates
	return models.FlightSummary{
		FlightName:       d.FlightName,
		FlightNumber:     d.FlightNumber,
		ScheduleDateTime: d.ScheduleDateTime,
		State:            flightstate.MostSignificantState(states),
		IsDelayed:        flightstate.IsEffectivelyDelayed(states),
		DelayMinutes:     int(DisplayDelay(d.Flight).Minutes()),
		SignedDelay:      int(Delay(d.Flight).Minutes()),
		Destination:      d.Destination(),
		AircraftType:     d.AircraftType.IATAMain,
		IsCancelled:      d.IsCancelled,
	}
}

type interval struct {
	start, end time.Time
}

// utilization is the share of the operating day (05:00-23:00 in now's zone)
// covered by turnaround blocks ending at each flight's departure.
func utilization(flights []models.DisplayFlight, now time.Time) float64 {
	y, m, day := now.Date()
	dayStart := time.Date(y, m, day, dayStartHour, 0, 0, 0, now.Location())
	dayEnd := time.Date(y, m, day, dayEndHour, 0, 0, 0, now.Location())

	var blocks []interval
	for _, d := range flights {
		if d.IsCancelled || d.ScheduleDateTime.IsZero() {
			continue
		}
		end := departureTime(d.Flight)
		start := end.Add(-turnaround)
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		if end.After(start) {
			blocks = append(blocks, interval{start, end})
		}
	}
	if len(blocks) == 0 {
		return 0
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].start.Before(blocks[j].start) })
	var covered time.Duration
	current := blocks[0]
	for _, b := range blocks[1:] {
		if b.start.After(current.end) {
			covered += current.end.Sub(current.start)
			current = b
			continue
		}
		if b.end.After(current.end) {
			current.end = b.end
		}
	}
	covered += current.end.Sub(current.start)

	ratio := float64(covered) / float64(dayEnd.Sub(dayStart))
	return math.Round(ratio*1000) / 1000
}

// lessGate orders gates naturally (D2 before D10) and puts NO_GATE last
func lessGate(a, b string) bool {
	if a == models.NoGate || b == models.NoGate {
		return b == models.NoGate && a != models.NoGate
	}
	pa, na, okA := splitGate(a)
	pb, nb, okB := splitGate(b)
	if pa != pb {
		return pa < pb
	}
	if okA && okB && na != nb {
		return na < nb
	}
	return a < b
}

func splitGate(gate string) (string, int, bool) {
	i := strings.IndexFunc(gate, unicode.IsDigit)
	if i < 0 {
		return gate, 0, false
	}
	end := i
	for end < len(gate) && unicode.IsDigit(rune(gate[end])) {
		end++
	}
	n, err := strconv.Atoi(gate[i:end])
	return gate[:i], n, err == nil
}
