package model

import (
	"strings"
	"time"
)

// Codeshare status values that carry nothing worth showing to the user.
const (
	CodeshareIsOperator = "IsOperator"
	CodeshareUnknown    = "Unknown"
)

// Flight is the canonical record for one looked-up flight.
//
// The first six fields are always set after normalization. Every other
// field is optional and the empty string means "unknown"; callers must not
// substitute defaults for it. All times are ISO-8601 instants as supplied by
// the provider (UTC) and are parsed on demand with ParseInstant.
//
// A Flight is built once per lookup and never mutated afterwards.
type Flight struct {
	Airline       string `json:"airline"`
	FlightNumber  string `json:"flightNumber"`
	DepartureTime string `json:"departureTime"` // scheduled
	ArrivalTime   string `json:"arrivalTime"`   // scheduled
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`

	DepartureTerminal string `json:"departureTerminal,omitempty"`
	ArrivalTerminal   string `json:"arrivalTerminal,omitempty"`
	DepartureGate     string `json:"departureGate,omitempty"`
	ArrivalGate       string `json:"arrivalGate,omitempty"`
	BaggageBelt       string `json:"baggageBelt,omitempty"`

	PredictedArrivalTime string `json:"predictedArrivalTime,omitempty"`
	ActualDepartureTime  string `json:"actualDepartureTime,omitempty"`
	ActualArrivalTime    string `json:"actualArrivalTime,omitempty"`

	Status          string `json:"status,omitempty"`
	CodeshareStatus string `json:"codeshareStatus,omitempty"`
	AircraftModel   string `json:"aircraftModel,omitempty"`

	OriginMunicipality      string `json:"originMunicipalityName,omitempty"`
	DestinationMunicipality string `json:"destinationMunicipalityName,omitempty"`
	AirlineIATA             string `json:"airlineIata,omitempty"`
}

// ReportableCodeshare returns the codeshare status if it is set and is not
// one of the "nothing to report" sentinels.
func (f Flight) ReportableCodeshare() (string, bool) {
	switch f.CodeshareStatus {
	case "", CodeshareIsOperator, CodeshareUnknown:
		return "", false
	}
	return f.CodeshareStatus, true
}

// Duration returns the scheduled block time. ok is false when either
// scheduled time does not parse or arrival is not after departure.
func (f Flight) Duration() (d time.Duration, ok bool) {
	dep, err := ParseInstant(f.DepartureTime)
	if err != nil {
		return 0, false
	}
	arr, err := ParseInstant(f.ArrivalTime)
	if err != nil {
		return 0, false
	}
	if !arr.After(dep) {
		return 0, false
	}
	return arr.Sub(dep), true
}

// LogoURL points at a small airline logo keyed by IATA code, or "" if the
// code is unknown.
func (f Flight) LogoURL() string {
	code := strings.ToUpper(strings.TrimSpace(f.AirlineIATA))
	if code == "" {
		return ""
	}
	return "http://pics.avs.io/40/40/" + code + ".png"
}

// ClockTimes returns the scheduled departure and arrival as HH:mm in loc,
// using "N/A" for a time that does not parse.
func (f Flight) ClockTimes(loc *time.Location) (dep, arr string) {
	if loc == nil {
		loc = time.Local
	}
	clock := func(s string) string {
		t, err := ParseInstant(s)
		if err != nil {
			return "N/A"
		}
		return t.In(loc).Format("15:04")
	}
	return clock(f.DepartureTime), clock(f.ArrivalTime)
}
