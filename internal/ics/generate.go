package ics

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "flightcal/internal/log"
	"flightcal/internal/model"
)

const (
	DefaultQuickAddURL = "https://calendar.google.com/calendar/render"
	DefaultUIDDomain   = "flighttocalendar.com"
	DefaultProductID   = "flightcal"

	// ContentType is the MIME type for CalendarFile output.
	ContentType = "text/calendar; charset=utf-8"

	calendarStampLayout = "20060102T150405Z"
	fallbackWindow      = time.Hour
)

// busyStatusProperty is the Outlook extension most clients read for
// free/busy display.
const busyStatusProperty = ical.ComponentProperty("X-MICROSOFT-CDO-BUSYSTATUS")

// FormattingError reports a time field that could not be parsed while
// building a calendar artifact.
type FormattingError struct {
	Field string
	Value string
	Err   error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("ics: cannot format %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FormattingError) Unwrap() error { return e.Err }

// Options configures a Generator. Zero values use the package defaults.
type Options struct {
	// QuickAddURL is the web calendar "create event" endpoint.
	QuickAddURL string
	// UIDDomain is appended to event UIDs ("{number}-{departure}@domain").
	UIDDomain string
	// ProductID goes into the calendar PRODID.
	ProductID string
	// Location is the zone used for human-readable times in descriptions.
	Location *time.Location
	// Now is the clock used for DTSTAMP and the quick-add fallback window.
	Now func() time.Time
}

// Generator derives calendar artifacts from a flight record. It holds no
// mutable state and is safe for concurrent use.
type Generator struct {
	quickAddURL string
	uidDomain   string
	productID   string
	loc         *time.Location
	now         func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		quickAddURL: opts.QuickAddURL,
		uidDomain:   opts.UIDDomain,
		productID:   opts.ProductID,
		loc:         opts.Location,
		now:         opts.Now,
	}
	if g.quickAddURL == "" {
		g.quickAddURL = DefaultQuickAddURL
	}
	if g.uidDomain == "" {
		g.uidDomain = DefaultUIDDomain
	}
	if g.productID == "" {
		g.productID = DefaultProductID
	}
	if g.loc == nil {
		g.loc = time.Local
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

var defaultGenerator = NewGenerator(Options{})

// QuickAddLink is Generator.QuickAddLink with default options.
func QuickAddLink(f model.Flight) string { return defaultGenerator.QuickAddLink(f) }

// CalendarFile is Generator.CalendarFile with default options.
func CalendarFile(f model.Flight) (string, error) { return defaultGenerator.CalendarFile(f) }

// Title is the event title used by both artifacts.
func Title(f model.Flight) string {
	return "Flight " + f.Airline + " " + f.FlightNumber
}

// Description is Describe in the generator's display zone.
func (g *Generator) Description(f model.Flight) []string {
	return Describe(f, g.loc)
}

// QuickAddLink returns a URL that opens the web calendar's event form
// prefilled with the flight. The event spans the scheduled times; when
// either one does not parse, a one hour window starting now is used
// instead, so a usable link is always returned.
func (g *Generator) QuickAddLink(f model.Flight) string {
	start, end, err := scheduledWindow(f)
	if err != nil {
		appLog.Error("quick-add link: using fallback window", err, "flight_number", f.FlightNumber)
		start = g.now().UTC()
		end = start.Add(fallbackWindow)
	}

	params := url.Values{}
	params.Set("action", "TEMPLATE")
	params.Set("text", Title(f))
	params.Set("dates", start.UTC().Format(calendarStampLayout)+"/"+end.UTC().Format(calendarStampLayout))
	params.Set("details", strings.Join(g.Description(f), "\n"))
	params.Set("location", f.Origin)

	return g.quickAddURL + "?" + params.Encode()
}

// DateArray is a UTC date-time as {year, month (1-12), day, hour, minute}.
type DateArray [5]int

func toDateArray(t time.Time) DateArray {
	t = t.UTC()
	return DateArray{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute()}
}

// Time converts the array back to a UTC instant.
func (d DateArray) Time() time.Time {
	return time.Date(d[0], time.Month(d[1]), d[2], d[3], d[4], 0, 0, time.UTC)
}

// Event is the single VEVENT written by CalendarFile.
type Event struct {
	UID         string
	Start       DateArray
	End         DateArray
	Title       string
	Description string
	Location    string
	Status      ical.ObjectStatus
	BusyStatus  string
}

// Event builds the calendar event for f from its scheduled times.
func (g *Generator) Event(f model.Flight) (Event, error) {
	start, end, err := scheduledWindow(f)
	if err != nil {
		return Event{}, err
	}
	return Event{
		UID:         f.FlightNumber + "-" + f.DepartureTime + "@" + g.uidDomain,
		Start:       toDateArray(start),
		End:         toDateArray(end),
		Title:       Title(f),
		Description: strings.Join(g.Description(f), "\n"),
		Location:    f.Origin,
		Status:      ical.ObjectStatusConfirmed,
		BusyStatus:  "BUSY",
	}, nil
}

// CalendarFile renders f as an iCalendar document holding one event. It
// returns an error, and no content, when the scheduled times do not parse
// or serialization fails.
func (g *Generator) CalendarFile(f model.Flight) (string, error) {
	ev, err := g.Event(f)
	if err != nil {
		appLog.Error("calendar file: cannot build event", err, "flight_number", f.FlightNumber)
		return "", err
	}

	cal := ical.NewCalendarFor(g.productID)
	cal.SetMethod(ical.MethodPublish)

	ve := cal.AddEvent(ev.UID)
	ve.SetDtStampTime(g.now())
	ve.SetStartAt(ev.Start.Time())
	ve.SetEndAt(ev.End.Time())
	ve.SetSummary(ev.Title)
	ve.SetDescription(ev.Description)
	ve.SetLocation(ev.Location)
	ve.SetStatus(ev.Status)
	ve.SetTimeTransparency(ical.TransparencyOpaque)
	ve.SetProperty(busyStatusProperty, ev.BusyStatus)

	var b strings.Builder
	if err := cal.SerializeTo(&b); err != nil {
		appLog.Error("calendar file: serialization failed", err, "flight_number", f.FlightNumber)
		return "", fmt.Errorf("ics: serialize calendar: %w", err)
	}
	return b.String(), nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// FileName is the download name for a flight's calendar file.
func FileName(flightNumber string) string {
	return "flight_" + unsafeFileChars.ReplaceAllString(flightNumber, "_") + ".ics"
}

func scheduledWindow(f model.Flight) (start, end time.Time, err error) {
	start, err = model.ParseInstant(f.DepartureTime)
	if err != nil {
		return time.Time{}, time.Time{}, &FormattingError{Field: "departure time", Value: f.DepartureTime, Err: err}
	}
	end, err = model.ParseInstant(f.ArrivalTime)
	if err != nil {
		return time.Time{}, time.Time{}, &FormattingError{Field: "arrival time", Value: f.ArrivalTime, Err: err}
	}
	return start, end, nil
}
