package ics

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"flightcal/internal/model"
)

var datesPattern = regexp.MustCompile(`^\d{8}T\d{6}Z/\d{8}T\d{6}Z$`)

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func testGenerator() *Generator {
	return NewGenerator(Options{Location: time.UTC, Now: fixedClock})
}

func parseLink(t *testing.T, link string) *url.URL {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link %q is not a valid URL: %v", link, err)
	}
	if !u.IsAbs() {
		t.Fatalf("link %q is not absolute", link)
	}
	return u
}

func TestQuickAddLink_RoundTrip(t *testing.T) {
	f := baseFlight()
	g := testGenerator()

	u := parseLink(t, g.QuickAddLink(f))
	if u.Scheme != "https" || u.Host != "calendar.google.com" || u.Path != "/calendar/render" {
		t.Errorf("unexpected endpoint: %s", u.String())
	}

	q := u.Query()
	if q.Get("action") != "TEMPLATE" {
		t.Errorf("action = %q", q.Get("action"))
	}
	if q.Get("text") != "Flight BA BA1326" {
		t.Errorf("text = %q", q.Get("text"))
	}
	if q.Get("dates") != "20240601T100000Z/20240601T123000Z" {
		t.Errorf("dates = %q", q.Get("dates"))
	}
	if q.Get("location") != "LHR" {
		t.Errorf("location = %q", q.Get("location"))
	}
	if want := strings.Join(Describe(f, time.UTC), "\n"); q.Get("details") != want {
		t.Errorf("details = %q, want %q", q.Get("details"), want)
	}
}

func TestQuickAddLink_UsesScheduledTimes(t *testing.T) {
	f := baseFlight()
	f.ActualDepartureTime = "2024-06-01T10:40:00Z"
	f.ActualArrivalTime = "2024-06-01T13:10:00Z"
	f.PredictedArrivalTime = "2024-06-01T13:00:00Z"

	q := parseLink(t, testGenerator().QuickAddLink(f)).Query()
	if q.Get("dates") != "20240601T100000Z/20240601T123000Z" {
		t.Errorf("dates = %q", q.Get("dates"))
	}
}

func TestQuickAddLink_Fallback(t *testing.T) {
	tests := []struct {
		name string
		mut  func(f *model.Flight)
	}{
		{"bad departure", func(f *model.Flight) { f.DepartureTime = "garbage" }},
		{"bad arrival", func(f *model.Flight) { f.ArrivalTime = "" }},
		{"both bad", func(f *model.Flight) { f.DepartureTime = "x"; f.ArrivalTime = "y" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := baseFlight()
			tt.mut(&f)

			q := parseLink(t, testGenerator().QuickAddLink(f)).Query()
			dates := q.Get("dates")
			if !datesPattern.MatchString(dates) {
				t.Fatalf("dates %q does not match pattern", dates)
			}
			if dates != "20250102T030405Z/20250102T040405Z" {
				t.Errorf("dates = %q, want now/now+1h window", dates)
			}
		})
	}
}

func TestQuickAddLink_DatesAlwaysMatchPattern(t *testing.T) {
	f := baseFlight()
	f.DepartureTime = "2024-06-01 23:59Z"
	f.ArrivalTime = "2024-06-02T08:05:00+02:00"

	g := NewGenerator(Options{})
	dates := parseLink(t, g.QuickAddLink(f)).Query().Get("dates")
	if dates != "20240601T235900Z/20240602T060500Z" {
		t.Errorf("dates = %q", dates)
	}

	f.DepartureTime = "bogus"
	if dates := parseLink(t, QuickAddLink(f)).Query().Get("dates"); !datesPattern.MatchString(dates) {
		t.Errorf("fallback dates %q do not match pattern", dates)
	}
}

func TestQuickAddLink_CustomEndpoint(t *testing.T) {
	g := NewGenerator(Options{QuickAddURL: "https://calendar.example.com/add", Now: fixedClock})
	link := g.QuickAddLink(baseFlight())
	if !strings.HasPrefix(link, "https://calendar.example.com/add?") {
		t.Errorf("link = %q", link)
	}
}

func TestEvent_RoundTrip(t *testing.T) {
	ev, err := testGenerator().Event(baseFlight())
	if err != nil {
		t.Fatalf("Event() failed: %v", err)
	}
	if ev.Start != (DateArray{2024, 6, 1, 10, 0}) {
		t.Errorf("Start = %v, want [2024 6 1 10 0]", ev.Start)
	}
	if ev.End != (DateArray{2024, 6, 1, 12, 30}) {
		t.Errorf("End = %v, want [2024 6 1 12 30]", ev.End)
	}
	if ev.UID != "BA1326-2024-06-01T10:00:00Z@flighttocalendar.com" {
		t.Errorf("UID = %q", ev.UID)
	}
	if ev.Title != "Flight BA BA1326" || ev.Location != "LHR" {
		t.Errorf("unexpected title/location: %q / %q", ev.Title, ev.Location)
	}
	if ev.Status != "CONFIRMED" || ev.BusyStatus != "BUSY" {
		t.Errorf("unexpected status: %q / %q", ev.Status, ev.BusyStatus)
	}
}

func TestEvent_UTCComponents(t *testing.T) {
	f := baseFlight()
	f.DepartureTime = "2024-12-31T23:30:59-02:00"
	f.ArrivalTime = "2025-01-01 05:10Z"

	ev, err := testGenerator().Event(f)
	if err != nil {
		t.Fatalf("Event() failed: %v", err)
	}
	if ev.Start != (DateArray{2025, 1, 1, 1, 30}) {
		t.Errorf("Start = %v", ev.Start)
	}
	if ev.End != (DateArray{2025, 1, 1, 5, 10}) {
		t.Errorf("End = %v", ev.End)
	}
}

func TestCalendarFile_Content(t *testing.T) {
	f := baseFlight()
	f.Status = "Expected"
	f.DepartureGate = "A10"

	g := testGenerator()
	content, err := g.CalendarFile(f)
	if err != nil {
		t.Fatalf("CalendarFile() failed: %v", err)
	}

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:BA1326-2024-06-01T10:00:00Z@flighttocalendar.com",
		"DTSTAMP:20250102T030405Z",
		"DTSTART:20240601T100000Z",
		"DTEND:20240601T123000Z",
		"SUMMARY:Flight BA BA1326",
		"LOCATION:LHR",
		"STATUS:CONFIRMED",
		"TRANSP:OPAQUE",
		"X-MICROSOFT-CDO-BUSYSTATUS:BUSY",
		"END:VEVENT",
		"END:VCALENDAR",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("calendar file missing %q:\n%s", want, content)
		}
	}

	parsed, err := ParseFile([]byte(content))
	if err != nil {
		t.Fatalf("ParseFile() failed: %v", err)
	}
	if want := strings.Join(g.Description(f), "\n"); parsed.Description != want {
		t.Errorf("description = %q, want %q", parsed.Description, want)
	}
	if !parsed.Start.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("parsed start = %v", parsed.Start)
	}
	if !parsed.End.Equal(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("parsed end = %v", parsed.End)
	}
}

func TestCalendarFile_DescriptionMatchesLink(t *testing.T) {
	f := baseFlight()
	f.CodeshareStatus = "Marketed"
	g := testGenerator()

	content, err := g.CalendarFile(f)
	if err != nil {
		t.Fatalf("CalendarFile() failed: %v", err)
	}
	parsed, err := ParseFile([]byte(content))
	if err != nil {
		t.Fatalf("ParseFile() failed: %v", err)
	}

	q := parseLink(t, g.QuickAddLink(f)).Query()
	if parsed.Description != q.Get("details") {
		t.Errorf("file description %q != link details %q", parsed.Description, q.Get("details"))
	}
	if parsed.Summary != q.Get("text") {
		t.Errorf("file summary %q != link text %q", parsed.Summary, q.Get("text"))
	}
}

func TestCalendarFile_UnparsableTimes(t *testing.T) {
	for _, mut := range []func(f *model.Flight){
		func(f *model.Flight) { f.DepartureTime = "garbage" },
		func(f *model.Flight) { f.ArrivalTime = "" },
	} {
		f := baseFlight()
		mut(&f)

		content, err := testGenerator().CalendarFile(f)
		if content != "" {
			t.Errorf("expected no content, got %q", content)
		}
		var ferr *FormattingError
		if !errors.As(err, &ferr) {
			t.Errorf("expected FormattingError, got %v", err)
		}
	}
}

func TestCalendarFile_PackageDefault(t *testing.T) {
	content, err := CalendarFile(baseFlight())
	if err != nil {
		t.Fatalf("CalendarFile() failed: %v", err)
	}
	if !strings.Contains(content, "PRODID:-//flightcal//Golang ICS Library") {
		t.Errorf("unexpected PRODID:\n%s", content)
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	g := testGenerator()
	f := baseFlight()
	wantLink := g.QuickAddLink(f)
	wantFile, _ := g.CalendarFile(f)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := g.QuickAddLink(f); got != wantLink {
				t.Errorf("link differs under concurrency")
			}
			if got, _ := g.CalendarFile(f); got != wantFile {
				t.Errorf("file differs under concurrency")
			}
		}()
	}
	wg.Wait()
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"BA1326":   "flight_BA1326.ics",
		"BA 1326":  "flight_BA_1326.ics",
		"U2/8123":  "flight_U2_8123.ics",
		"LH-400.a": "flight_LH_400_a.ics",
		"":         "flight_.ics",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
