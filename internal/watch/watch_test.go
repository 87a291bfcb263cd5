package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flightcal/internal/ics"
	"flightcal/internal/lookup"
	"flightcal/internal/model"
)

type fakeLookup struct {
	flight model.Flight
	err    error
}

func (f *fakeLookup) Lookup(context.Context, lookup.Query) (model.Flight, error) {
	return f.flight, f.err
}

func testFlight() model.Flight {
	return model.Flight{
		Airline:       "British Airways",
		FlightNumber:  "BA1326",
		DepartureTime: "2024-06-01 10:00Z",
		ArrivalTime:   "2024-06-01 12:30Z",
		Origin:        "LHR",
		Destination:   "JFK",
		Status:        "Expected",
	}
}

func newWatcher(t *testing.T, fl FlightLookup, now *time.Time) *Watcher {
	t.Helper()
	gen := ics.NewGenerator(ics.Options{
		Location: time.UTC,
		Now:      func() time.Time { return *now },
	})
	w, err := New(Options{
		Lookup:    fl,
		Generator: gen,
		Schedule:  "*/15 * * * *",
		OutputDir: t.TempDir(),
	}, lookup.Query{FlightNumber: "BA1326", Date: "2024-06-01"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return w
}

func TestNew_Validation(t *testing.T) {
	gen := ics.NewGenerator(ics.Options{})
	fl := &fakeLookup{}
	q := lookup.Query{FlightNumber: "BA1326", Date: "2024-06-01"}

	if _, err := New(Options{Generator: gen, Schedule: "* * * * *", OutputDir: "x"}, q); err == nil {
		t.Error("expected error without lookup")
	}
	if _, err := New(Options{Lookup: fl, Generator: gen, Schedule: "* * * * *"}, q); err == nil {
		t.Error("expected error without output dir")
	}
	if _, err := New(Options{Lookup: fl, Generator: gen, Schedule: "not a schedule", OutputDir: "x"}, q); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestRefreshOnce_WritesOnlyOnChange(t *testing.T) {
	now := time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)
	fl := &fakeLookup{flight: testFlight()}
	w := newWatcher(t, fl, &now)

	res, err := w.RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if !res.Changed {
		t.Error("first refresh should write the file")
	}
	if filepath.Base(res.Path) != "flight_BA1326.ics" {
		t.Errorf("path = %q", res.Path)
	}
	first, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	// Only DTSTAMP moves.
	now = now.Add(15 * time.Minute)
	res, err = w.RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
	if res.Changed {
		t.Error("unchanged event should not be rewritten")
	}
	second, _ := os.ReadFile(res.Path)
	if string(first) != string(second) {
		t.Error("file content changed although the event did not")
	}

	fl.flight.DepartureGate = "A10"
	res, err = w.RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("third refresh failed: %v", err)
	}
	if !res.Changed {
		t.Error("new gate should rewrite the file")
	}
	third, _ := os.ReadFile(res.Path)
	ev, err := ics.ParseFile(third)
	if err != nil {
		t.Fatalf("ParseFile() failed: %v", err)
	}
	if !strings.Contains(ev.Description, "Gate A10") {
		t.Errorf("rewritten description lacks the gate: %q", ev.Description)
	}
}

func TestRefreshOnce_ReplacesCorruptFile(t *testing.T) {
	now := time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)
	w := newWatcher(t, &fakeLookup{flight: testFlight()}, &now)

	if err := os.WriteFile(w.Path(), []byte("not a calendar"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := w.RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !res.Changed {
		t.Error("corrupt file should be replaced")
	}
	data, _ := os.ReadFile(w.Path())
	if _, err := ics.ParseFile(data); err != nil {
		t.Errorf("replacement does not parse: %v", err)
	}
}

func TestRefreshOnce_Errors(t *testing.T) {
	now := time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)

	boom := errors.New("provider down")
	w := newWatcher(t, &fakeLookup{err: boom}, &now)
	if _, err := w.RefreshOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected lookup error, got %v", err)
	}
	if _, err := os.Stat(w.Path()); err == nil {
		t.Error("no file should be written on lookup failure")
	}

	f := testFlight()
	f.ArrivalTime = "soon"
	w = newWatcher(t, &fakeLookup{flight: f}, &now)
	_, err := w.RefreshOnce(context.Background())
	var ferr *ics.FormattingError
	if !errors.As(err, &ferr) {
		t.Errorf("expected FormattingError, got %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	now := time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)
	w := newWatcher(t, &fakeLookup{flight: testFlight()}, &now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(w.Path()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial refresh did not write the file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
