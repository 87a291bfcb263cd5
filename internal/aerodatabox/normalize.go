package aerodatabox

import (
	"bytes"
	"encoding/json"
	"strings"

	appLog "flightcal/internal/log"
	"flightcal/internal/model"
)

// maxLoggedPayload bounds how much of a rejected payload ends up in the log.
const maxLoggedPayload = 4096

// requiredFields are checked together before any record is built.
var requiredFields = []string{
	"airline.name",
	"number",
	"departure.airport.iata",
	"departure.scheduledTime.utc",
	"arrival.airport.iata",
	"arrival.scheduledTime.utc",
}

// optionalField maps a record field to its candidate provider paths; the
// first path holding a non-blank string wins.
type optionalField struct {
	paths  []string
	assign func(f *model.Flight, v string)
}

var optionalFields = []optionalField{
	{[]string{"departure.terminal"}, func(f *model.Flight, v string) { f.DepartureTerminal = v }},
	{[]string{"arrival.terminal"}, func(f *model.Flight, v string) { f.ArrivalTerminal = v }},
	{[]string{"departure.gate"}, func(f *model.Flight, v string) { f.DepartureGate = v }},
	{[]string{"arrival.gate"}, func(f *model.Flight, v string) { f.ArrivalGate = v }},
	{[]string{"arrival.baggageBelt"}, func(f *model.Flight, v string) { f.BaggageBelt = v }},
	{[]string{"arrival.predictedTime.utc"}, func(f *model.Flight, v string) { f.PredictedArrivalTime = v }},
	{[]string{"departure.actualTimeUtc", "departure.actualTime.utc"}, func(f *model.Flight, v string) { f.ActualDepartureTime = v }},
	{[]string{"arrival.actualTimeUtc", "arrival.actualTime.utc"}, func(f *model.Flight, v string) { f.ActualArrivalTime = v }},
	{[]string{"status"}, func(f *model.Flight, v string) { f.Status = v }},
	{[]string{"codeshareStatus"}, func(f *model.Flight, v string) { f.CodeshareStatus = v }},
	{[]string{"aircraft.model"}, func(f *model.Flight, v string) { f.AircraftModel = v }},
	{[]string{"departure.airport.municipalityName"}, func(f *model.Flight, v string) { f.OriginMunicipality = v }},
	{[]string{"arrival.airport.municipalityName"}, func(f *model.Flight, v string) { f.DestinationMunicipality = v }},
	{[]string{"airline.iata"}, func(f *model.Flight, v string) { f.AirlineIATA = v }},
}

// Normalize decodes a raw /flights/number response and builds the flight
// record from its first element.
func Normalize(raw []byte) (model.Flight, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return model.Flight{}, &EmptyResultError{Reason: "unexpected format: " + err.Error()}
	}
	return NormalizeValue(v)
}

// NormalizeValue is Normalize for an already decoded JSON value.
//
// Only the first list element is used. The provider lists the operating
// leg first; further elements (other legs, codeshare duplicates) are
// dropped rather than merged.
func NormalizeValue(v any) (model.Flight, error) {
	list, ok := v.([]any)
	if !ok {
		return model.Flight{}, &EmptyResultError{Reason: "unexpected format from API"}
	}
	if len(list) == 0 {
		return model.Flight{}, &EmptyResultError{Reason: "empty flight list"}
	}
	if len(list) > 1 {
		appLog.Debug("provider returned several flights; using the first", "count", len(list))
	}

	obj, ok := list[0].(map[string]any)
	if !ok {
		return model.Flight{}, &EmptyResultError{Reason: "first flight entry is not an object"}
	}

	var missing []string
	for _, p := range requiredFields {
		if _, ok := firstString(obj, p); !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		err := &ValidationError{Missing: missing}
		appLog.Error("core flight data fields missing in API response", err, "payload", payloadForLog(obj))
		return model.Flight{}, err
	}

	f := model.Flight{
		Airline:       mustString(obj, "airline.name"),
		FlightNumber:  mustString(obj, "number"),
		DepartureTime: mustString(obj, "departure.scheduledTime.utc"),
		ArrivalTime:   mustString(obj, "arrival.scheduledTime.utc"),
		Origin:        mustString(obj, "departure.airport.iata"),
		Destination:   mustString(obj, "arrival.airport.iata"),
	}
	for _, of := range optionalFields {
		if s, ok := firstString(obj, of.paths...); ok {
			of.assign(&f, s)
		}
	}

	appLog.Debug("flight normalized",
		"flight_number", f.FlightNumber,
		"origin", f.Origin,
		"destination", f.Destination,
		"departure", f.DepartureTime,
	)
	return f, nil
}

// firstString returns the value at the first dotted path that resolves to a
// non-blank string.
func firstString(obj map[string]any, paths ...string) (string, bool) {
	for _, p := range paths {
		v, ok := lookupPath(obj, p)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		return s, true
	}
	return "", false
}

func mustString(obj map[string]any, path string) string {
	s, _ := firstString(obj, path)
	return s
}

func lookupPath(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func payloadForLog(obj map[string]any) string {
	b, err := json.Marshal(obj)
	if err != nil {
		return "<unencodable payload>"
	}
	if len(b) > maxLoggedPayload {
		return string(b[:maxLoggedPayload]) + "...(truncated)"
	}
	return string(b)
}
