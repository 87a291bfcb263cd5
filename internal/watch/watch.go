package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"flightcal/internal/config"
	"flightcal/internal/ics"
	appLog "flightcal/internal/log"
	"flightcal/internal/lookup"
	"flightcal/internal/metrics"
	"flightcal/internal/model"
)

// FlightLookup resolves one flight. *lookup.Service implements it.
type FlightLookup interface {
	Lookup(ctx context.Context, q lookup.Query) (model.Flight, error)
}

// Options configures a Watcher.
type Options struct {
	Lookup    FlightLookup
	Generator *ics.Generator
	Metrics   *metrics.Metrics

	// Schedule is a standard 5-field cron expression.
	Schedule string
	// OutputDir receives the exported calendar file.
	OutputDir string
}

// Result describes one refresh.
type Result struct {
	Path    string
	Changed bool
	Flight  model.Flight
}

// Watcher keeps a flight's calendar export up to date on a schedule.
type Watcher struct {
	opts     Options
	query    lookup.Query
	schedule cron.Schedule

	mu         sync.Mutex
	lastStatus string
}

// New validates the schedule and returns a Watcher for q.
func New(opts Options, q lookup.Query) (*Watcher, error) {
	if opts.Lookup == nil || opts.Generator == nil {
		return nil, errors.New("watch: lookup and generator are required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.New("watch: output directory is empty")
	}
	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("watch: invalid schedule %q: %w", opts.Schedule, err)
	}
	return &Watcher{opts: opts, query: q, schedule: sched}, nil
}

// Path is where the calendar file for the watched flight is written.
func (w *Watcher) Path() string {
	return filepath.Join(w.opts.OutputDir, ics.FileName(w.query.FlightNumber))
}

// RefreshOnce looks the flight up and rewrites its calendar file when the
// event changed. DTSTAMP alone never counts as a change.
func (w *Watcher) RefreshOnce(ctx context.Context) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := Result{Path: w.Path()}

	f, err := w.opts.Lookup.Lookup(ctx, w.query)
	if err != nil {
		return res, err
	}
	res.Flight = f

	if w.lastStatus != "" && f.Status != w.lastStatus {
		appLog.Info("flight status changed",
			"flight_number", f.FlightNumber,
			"from", w.lastStatus,
			"to", f.Status,
		)
	}
	w.lastStatus = f.Status

	content, err := w.opts.Generator.CalendarFile(f)
	if err != nil {
		w.observe("error")
		return res, err
	}
	fresh, err := ics.ParseFile([]byte(content))
	if err != nil {
		w.observe("error")
		return res, fmt.Errorf("watch: re-read generated calendar: %w", err)
	}

	existing, err := os.ReadFile(res.Path)
	switch {
	case err == nil:
		if old, perr := ics.ParseFile(existing); perr == nil && ics.SameEvent(old, fresh) {
			appLog.Debug("calendar file unchanged", "path", res.Path)
			w.observe("unchanged")
			return res, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		w.observe("error")
		return res, err
	}

	if err := config.WriteFileAtomic(res.Path, []byte(content), ".flightcal-*.ics.tmp"); err != nil {
		w.observe("error")
		return res, err
	}
	res.Changed = true
	w.observe("ok")
	appLog.Info("calendar file written", "path", res.Path, "flight_number", f.FlightNumber, "status", f.Status)
	return res, nil
}

// Run refreshes once immediately and then on every schedule tick until ctx
// is cancelled. Ticks that overlap a running refresh are skipped.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.RefreshOnce(ctx); err != nil {
		appLog.Error("initial refresh failed", err, "flight_number", w.query.FlightNumber)
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.RefreshOnce(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err, "flight_number", w.query.FlightNumber)
		}
	}))

	appLog.Info("watching flight",
		"flight_number", w.query.FlightNumber,
		"date", w.query.Date,
		"schedule", w.opts.Schedule,
		"path", w.Path(),
	)
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("watcher stopped", "flight_number", w.query.FlightNumber)
	return nil
}

func (w *Watcher) observe(result string) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.Artifacts.WithLabelValues("watch", result).Inc()
	}
}

// cronLogger routes cron's own logging through appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
