package models

import "time"

// GateStatus is the derived status of one gate
type GateStatus string

const (
	GateAvailable GateStatus = "AVAILABLE"
	GatePreparing GateStatus = "PREPARING"
	GateScheduled GateStatus = "SCHEDULED"
	GateOccupied  GateStatus = "OCCUPIED"
	GatePending   GateStatus = "PENDING"
)

// NoGate is the bucket for flights without a usable gate
const NoGate = "NO_GATE"

// FlightSummary is the compact flight view listed under a gate
type FlightSummary struct {
	FlightName       string    `json:"flightName"`
	FlightNumber     int       `json:"flightNumber"`
	ScheduleDateTime time.Time `json:"scheduleDateTime"`
	State            string    `json:"state"`
	IsDelayed        bool      `json:"isDelayed"`
	DelayMinutes     int       `json:"delayMinutes"`
	SignedDelay      int       `json:"signedDelayMinutes"`
	Destination      string    `json:"destination,omitempty"`
	AircraftType     string    `json:"aircraftType,omitempty"`
	IsCancelled      bool      `json:"isCancelled"`
}

// GateSnapshot is a point in time view of one gate
type GateSnapshot struct {
	GateID           string          `json:"gateID"`
	Pier             string          `json:"pier,omitempty"`
	Status           GateStatus      `json:"status"`
	OccupiedBy       *string         `json:"occupiedBy"`
	Utilization      float64         `json:"utilization"`
	ScheduledFlights []FlightSummary `json:"scheduledFlights"`
}
