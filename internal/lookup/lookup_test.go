package lookup

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"flightcal/internal/aerodatabox"
	"flightcal/internal/metrics"
)

const payload = `[{
  "number": "BA 1326",
  "airline": {"name": "British Airways", "iata": "BA"},
  "departure": {"airport": {"iata": "LHR"}, "scheduledTime": {"utc": "2024-06-01 10:00Z"}},
  "arrival": {"airport": {"iata": "JFK"}, "scheduledTime": {"utc": "2024-06-01 12:30Z"}}
}]`

type fakeFetcher struct {
	body []byte
	err  error

	calls  int
	gotKey string
}

func (f *fakeFetcher) FetchRaw(_ context.Context, _, _, apiKey string) ([]byte, error) {
	f.calls++
	f.gotKey = apiKey
	return f.body, f.err
}

func lookupCount(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Lookups.WithLabelValues(result).Write(&out); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return out.GetCounter().GetValue()
}

func TestLookup_Success(t *testing.T) {
	m := metrics.NewMetrics("test")
	fetcher := &fakeFetcher{body: []byte(payload)}
	svc := NewService(fetcher, "default-key", m)

	f, err := svc.Lookup(context.Background(), Query{FlightNumber: " BA1326 ", Date: "2024-06-01"})
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if f.FlightNumber != "BA 1326" || f.Origin != "LHR" || f.Destination != "JFK" {
		t.Errorf("unexpected flight: %+v", f)
	}
	if fetcher.gotKey != "default-key" {
		t.Errorf("key = %q, want default", fetcher.gotKey)
	}
	if got := lookupCount(t, m, "ok"); got != 1 {
		t.Errorf("ok lookups = %v", got)
	}
}

func TestLookup_CallerKeyWins(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(payload)}
	svc := NewService(fetcher, "default-key", nil)

	if _, err := svc.Lookup(context.Background(), Query{FlightNumber: "BA1326", Date: "2024-06-01", APIKey: "mine"}); err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if fetcher.gotKey != "mine" {
		t.Errorf("key = %q, want caller's", fetcher.gotKey)
	}
}

func TestLookup_MissingInput(t *testing.T) {
	tests := []struct {
		name       string
		defaultKey string
		q          Query
		want       string
	}{
		{"no number", "k", Query{Date: "2024-06-01"}, "flight number"},
		{"no date", "k", Query{FlightNumber: "BA1326"}, "date"},
		{"no key at all", "", Query{FlightNumber: "BA1326", Date: "2024-06-01"}, "API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{body: []byte(payload)}
			svc := NewService(fetcher, tt.defaultKey, nil)

			_, err := svc.Lookup(context.Background(), tt.q)
			if !errors.Is(err, ErrMissingInput) {
				t.Fatalf("expected ErrMissingInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if fetcher.calls != 0 {
				t.Errorf("fetcher called %d times", fetcher.calls)
			}
		})
	}
}

func TestLookup_DefaultKeyHint(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests} {
		fetcher := &fakeFetcher{err: &aerodatabox.TransportError{StatusCode: code}}

		_, err := NewService(fetcher, "default-key", nil).Lookup(context.Background(), Query{FlightNumber: "BA1326", Date: "2024-06-01"})
		if err == nil || !strings.Contains(err.Error(), "default API key") {
			t.Errorf("status %d: expected default key hint, got %v", code, err)
		}
		var terr *aerodatabox.TransportError
		if !errors.As(err, &terr) || terr.StatusCode != code {
			t.Errorf("status %d: TransportError not preserved: %v", code, err)
		}

		_, err = NewService(fetcher, "default-key", nil).Lookup(context.Background(), Query{FlightNumber: "BA1326", Date: "2024-06-01", APIKey: "own"})
		if err == nil || strings.Contains(err.Error(), "default API key") {
			t.Errorf("status %d: hint must not appear for a caller key, got %v", code, err)
		}
	}

	fetcher := &fakeFetcher{err: &aerodatabox.TransportError{StatusCode: http.StatusInternalServerError}}
	_, err := NewService(fetcher, "default-key", nil).Lookup(context.Background(), Query{FlightNumber: "BA1326", Date: "2024-06-01"})
	if err == nil || strings.Contains(err.Error(), "default API key") {
		t.Errorf("500: hint must not appear, got %v", err)
	}
}

func TestLookup_NormalizeErrors(t *testing.T) {
	m := metrics.NewMetrics("test")

	svc := NewService(&fakeFetcher{body: []byte(`[]`)}, "k", m)
	_, err := svc.Lookup(context.Background(), Query{FlightNumber: "XX1", Date: "2024-06-01"})
	var eerr *aerodatabox.EmptyResultError
	if !errors.As(err, &eerr) {
		t.Errorf("expected EmptyResultError, got %v", err)
	}

	svc = NewService(&fakeFetcher{body: []byte(`[{"number": "XX1"}]`)}, "k", m)
	_, err = svc.Lookup(context.Background(), Query{FlightNumber: "XX1", Date: "2024-06-01"})
	var verr *aerodatabox.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	if got := lookupCount(t, m, "empty"); got != 1 {
		t.Errorf("empty lookups = %v", got)
	}
	if got := lookupCount(t, m, "invalid"); got != 1 {
		t.Errorf("invalid lookups = %v", got)
	}
}
