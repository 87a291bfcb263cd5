package ics

import (
	"bytes"
	"errors"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "flightcal/internal/log"
)

// ParsedEvent is the subset of a VEVENT that flightcal reads back from an
// exported calendar file.
type ParsedEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Status      string

	Start time.Time
	End   time.Time
}

// ParseFile parses an iCalendar document and returns its first VEVENT.
// Files written by CalendarFile hold exactly one.
func ParseFile(body []byte) (ParsedEvent, error) {
	if len(body) == 0 {
		return ParsedEvent{}, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return ParsedEvent{}, err
	}

	events := cal.Events()
	if len(events) == 0 {
		return ParsedEvent{}, errors.New("no VEVENT in calendar")
	}
	return parseVEvent(events[0])
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, err
	}
	out.Start = start.UTC()
	out.End = end.UTC()

	return out, nil
}

// SameEvent reports whether two parsed events would look identical in a
// calendar client. DTSTAMP is ignored.
func SameEvent(a, b ParsedEvent) bool {
	return a.UID == b.UID &&
		a.Summary == b.Summary &&
		a.Description == b.Description &&
		a.Location == b.Location &&
		a.Status == b.Status &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End)
}
