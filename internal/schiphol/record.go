package schiphol

// RawFlight is the flight record as delivered by the Schiphol Flight API v4.
// Optional fields are pointers so a missing field is distinguishable from an
// empty one.
type RawFlight struct {
	FlightNumber    int     `json:"flightNumber"`
	FlightName      string  `json:"flightName"`
	MainFlight      *string `json:"mainFlight,omitempty"`
	PrefixIATA      string  `json:"prefixIATA,omitempty"`
	PrefixICAO      string  `json:"prefixICAO,omitempty"`
	FlightDirection string  `json:"flightDirection"`

	ScheduleDateTime            string  `json:"scheduleDateTime"`
	ScheduleDate                string  `json:"scheduleDate,omitempty"`
	ScheduleTime                string  `json:"scheduleTime,omitempty"`
	PublicEstimatedOffBlockTime *string `json:"publicEstimatedOffBlockTime,omitempty"`
	ActualOffBlockTime          *string `json:"actualOffBlockTime,omitempty"`
	LastUpdatedAt               *string `json:"lastUpdatedAt,omitempty"`

	Gate              *string               `json:"gate,omitempty"`
	Pier              *string               `json:"pier,omitempty"`
	AircraftType      *RawAircraftType      `json:"aircraftType,omitempty"`
	PublicFlightState *RawPublicFlightState `json:"publicFlightState,omitempty"`
	Route             *RawRoute             `json:"route,omitempty"`
}

// RawAircraftType is the nested aircraft type object
type RawAircraftType struct {
	IATAMain string `json:"iataMain"`
	IATASub  string `json:"iataSub"`
}

// RawPublicFlightState is the nested state list object
type RawPublicFlightState struct {
	FlightStates []string `json:"flightStates"`
}

// RawRoute is the nested route object
type RawRoute struct {
	Destinations []string `json:"destinations"`
}

// flightsPage is one page of the flights resource
type flightsPage struct {
	Flights []RawFlight `json:"flights"`
}
