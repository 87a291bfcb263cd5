package ics

import (
	"strings"
	"time"

	"flightcal/internal/model"
)

// readableLayout renders e.g. "Jun 1, 2024, 10:00 AM".
const readableLayout = "Jan 2, 2006, 3:04 PM"

// Describe builds the event description shared by the quick-add link and
// the calendar file. Times are shown in loc (time.Local when nil); a time
// that does not parse is left out rather than reported.
func Describe(f model.Flight, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	readable := func(s string) string {
		return formatReadable(s, loc)
	}

	header := "Flight: " + f.Airline + " " + f.FlightNumber
	if f.AircraftModel != "" {
		header += " (" + f.AircraftModel + ")"
	}

	status := f.Status
	if status == "" {
		status = "N/A"
	}

	lines := []string{header, "Status: " + status}

	if cs, ok := f.ReportableCodeshare(); ok {
		lines = append(lines, "("+cs+")")
	}

	var origin strings.Builder
	origin.WriteString("Origin: " + f.Origin)
	if f.DepartureTerminal != "" {
		origin.WriteString(" (Terminal " + f.DepartureTerminal + ")")
	}
	if f.DepartureGate != "" {
		origin.WriteString(" - Gate " + f.DepartureGate)
	}
	lines = append(lines, origin.String())

	var dest strings.Builder
	dest.WriteString("Destination: " + f.Destination)
	if f.ArrivalTerminal != "" {
		dest.WriteString(" (Terminal " + f.ArrivalTerminal + ")")
	}
	if f.ArrivalGate != "" {
		dest.WriteString(" - Gate " + f.ArrivalGate)
	}
	if f.BaggageBelt != "" {
		dest.WriteString(" - Baggage " + f.BaggageBelt)
	}
	lines = append(lines, dest.String())

	lines = append(lines, "---")

	if actual := readable(f.ActualDepartureTime); actual != "" {
		lines = append(lines, "Actual Departure: "+actual)
	} else if scheduled := readable(f.DepartureTime); scheduled != "" {
		lines = append(lines, "Scheduled Departure: "+scheduled)
	}

	if actual := readable(f.ActualArrivalTime); actual != "" {
		lines = append(lines, "Actual Arrival: "+actual)
	} else {
		scheduled := readable(f.ArrivalTime)
		if scheduled != "" {
			lines = append(lines, "Scheduled Arrival: "+scheduled)
		}
		if predicted := readable(f.PredictedArrivalTime); predicted != "" && predicted != scheduled {
			lines = append(lines, "Predicted Arrival: "+predicted)
		}
	}

	return lines
}

// DescriptionText joins Describe's lines with newlines.
func DescriptionText(f model.Flight, loc *time.Location) string {
	return strings.Join(Describe(f, loc), "\n")
}

// formatReadable returns "" for absent or unparsable values.
func formatReadable(s string, loc *time.Location) string {
	if s == "" {
		return ""
	}
	t, err := model.ParseInstant(s)
	if err != nil {
		return ""
	}
	return t.In(loc).Format(readableLayout)
}
