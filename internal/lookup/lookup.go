package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flightcal/internal/aerodatabox"
	appLog "flightcal/internal/log"
	"flightcal/internal/metrics"
	"flightcal/internal/model"
)

// ErrMissingInput is returned (wrapped) when the flight number, the date or
// every API key is missing.
var ErrMissingInput = errors.New("lookup: missing information")

// Fetcher retrieves the raw provider payload for one flight and date.
type Fetcher interface {
	FetchRaw(ctx context.Context, flightNumber, date, apiKey string) ([]byte, error)
}

// Query identifies a flight. Date is YYYY-MM-DD. APIKey may be empty, in
// which case the service's default key is used.
type Query struct {
	FlightNumber string
	Date         string
	APIKey       string
}

// Service is the lookup entry point: it resolves the credential, fetches
// the provider payload and normalizes it into a flight record.
type Service struct {
	fetcher    Fetcher
	defaultKey string
	metrics    *metrics.Metrics
}

// NewService constructs a Service. defaultKey is the configured fallback
// credential and may be empty; m may be nil.
func NewService(fetcher Fetcher, defaultKey string, m *metrics.Metrics) *Service {
	return &Service{
		fetcher:    fetcher,
		defaultKey: strings.TrimSpace(defaultKey),
		metrics:    m,
	}
}

// HasDefaultKey reports whether a fallback credential is configured.
func (s *Service) HasDefaultKey() bool {
	return s.defaultKey != ""
}

// Lookup fetches and normalizes one flight.
func (s *Service) Lookup(ctx context.Context, q Query) (model.Flight, error) {
	number := strings.TrimSpace(q.FlightNumber)
	date := strings.TrimSpace(q.Date)

	key := strings.TrimSpace(q.APIKey)
	usingDefault := false
	if key == "" {
		key = s.defaultKey
		usingDefault = true
	}

	var missing []string
	if number == "" {
		missing = append(missing, "flight number")
	}
	if date == "" {
		missing = append(missing, "date")
	}
	if key == "" {
		missing = append(missing, "API key (the default key might be missing)")
	}
	if len(missing) > 0 {
		s.observe("input")
		return model.Flight{}, fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(missing, ", "))
	}

	start := time.Now()
	raw, err := s.fetcher.FetchRaw(ctx, number, date, key)
	if s.metrics != nil {
		s.metrics.ProviderDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.observe(resultLabel(err))
		if usingDefault && defaultKeyRejected(err) {
			err = fmt.Errorf("%w; the default API key might have issues or reached its limit, try your own API key", err)
		}
		appLog.Error("flight lookup failed", err, "flight_number", number, "date", date, "default_key", usingDefault)
		return model.Flight{}, fmt.Errorf("failed to fetch flight data: %w", err)
	}

	f, err := aerodatabox.Normalize(raw)
	if err != nil {
		s.observe(resultLabel(err))
		return model.Flight{}, fmt.Errorf("failed to fetch flight data: %w", err)
	}

	s.observe("ok")
	appLog.Info("flight lookup succeeded", "flight_number", f.FlightNumber, "date", date, "origin", f.Origin, "destination", f.Destination)
	return f, nil
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.Lookups.WithLabelValues(result).Inc()
	}
}

func resultLabel(err error) string {
	var (
		terr *aerodatabox.TransportError
		eerr *aerodatabox.EmptyResultError
		verr *aerodatabox.ValidationError
	)
	switch {
	case errors.As(err, &terr):
		return "transport"
	case errors.As(err, &eerr):
		return "empty"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, aerodatabox.ErrInvalidDate):
		return "input"
	default:
		return "error"
	}
}

func defaultKeyRejected(err error) bool {
	var terr *aerodatabox.TransportError
	if !errors.As(err, &terr) {
		return false
	}
	switch terr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}
