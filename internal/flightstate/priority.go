// Package flightstate resolves the operational meaning of Schiphol flight
// state codes. A flight may carry several codes at once, e.g. DEL and GCH.
package flightstate

// Flight state codes
const (
	Scheduled     = "SCH"
	Delayed       = "DEL"
	GateChange    = "GCH"
	WaitInLounge  = "WIL"
	GateOpen      = "GTO"
	Boarding      = "BRD"
	GateClosing   = "GCL"
	GateClosed    = "GTD"
	Departed      = "DEP"
	Cancelled     = "CNX"
	FlightInRange = "FIR"
	Tomorrow      = "TOM"
	NewTime       = "STD"
)

var priorities = map[string]float64{
	Cancelled:     10,
	Departed:      9,
	GateClosed:    8,
	GateClosing:   7,
	Boarding:      6,
	GateOpen:      5,
	GateChange:    4.5,
	Delayed:       4,
	WaitInLounge:  2,
	FlightInRange: 1.5,
	Scheduled:     1,
	NewTime:       0.5,
	Tomorrow:      0.5,
}

var descriptions = map[string]string{
	Scheduled:     "Scheduled",
	Delayed:       "Delayed",
	GateChange:    "Gate change",
	WaitInLounge:  "Wait in lounge",
	GateOpen:      "Gate open",
	Boarding:      "Boarding",
	GateClosing:   "Gate closing",
	GateClosed:    "Gate closed",
	Departed:      "Departed",
	Cancelled:     "Cancelled",
	FlightInRange: "Flight in range",
	Tomorrow:      "Tomorrow",
	NewTime:       "New time",
}

// Priority returns the fixed priority of a code, 0 for unknown codes
func Priority(code string) float64 {
	return priorities[code]
}

// MostSignificantState returns the code with the highest priority. Ties go to
// the code seen first; an empty list yields SCH.
func MostSignificantState(states []string) string {
	if len(states) == 0 {
		return Scheduled
	}
	best := states[0]
	bestPriority := Priority(best)
	for _, s := range states[1:] {
		if p := Priority(s); p > bestPriority {
			best, bestPriority = s, p
		}
	}
	return best
}

// IsActive reports whether the code shows the flight progressing through
// boarding or departure.
func IsActive(code string) bool {
	switch code {
	case Boarding, GateOpen, GateClosing, GateClosed, Departed:
		return true
	}
	return false
}

// IsGateActive reports whether the code means the flight is using its gate
func IsGateActive(code string) bool {
	switch code {
	case Boarding, GateOpen, GateClosing, GateClosed:
		return true
	}
	return false
}

// IsEffectivelyDelayed is true when DEL is present and no active code is.
func IsEffectivelyDelayed(states []string) bool {
	delayed := false
	for _, s := range states {
		if IsActive(s) {
			return false
		}
		if s == Delayed {
			delayed = true
		}
	}
	return delayed
}

// Describe returns a human readable label for a code
func Describe(code string) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return code
}
