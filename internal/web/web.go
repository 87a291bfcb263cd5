package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flightcal/internal/aerodatabox"
	"flightcal/internal/config"
	"flightcal/internal/ics"
	appLog "flightcal/internal/log"
	"flightcal/internal/lookup"
	"flightcal/internal/metrics"
	"flightcal/internal/model"
)

// APIKeyHeader carries the caller's AeroDataBox key. When absent the
// server's configured default key is used.
const APIKeyHeader = "X-Api-Key"

// RequestIDHeader is set on every response.
const RequestIDHeader = "X-Request-Id"

// FlightLookup resolves one flight. *lookup.Service implements it.
type FlightLookup interface {
	Lookup(ctx context.Context, q lookup.Query) (model.Flight, error)
}

// Server provides the HTTP JSON API for flight lookups and calendar
// artifacts.
type Server struct {
	cfg     *config.Config
	flights FlightLookup
	gen     *ics.Generator
	loc     *time.Location
	metrics *metrics.Metrics
	mux     *http.ServeMux

	// Short-lived cache of successful lookups. Provider quotas are small
	// and the card and file endpoints are usually hit back to back.
	cacheMu  sync.RWMutex
	cache    map[cacheKey]cachedFlight
	cacheTTL time.Duration
	now      func() time.Time
}

type cacheKey struct {
	number, date, apiKey string
}

type cachedFlight struct {
	flight    model.Flight
	updatedAt time.Time
}

// NewServer constructs a new Server. m may be nil.
func NewServer(cfg *config.Config, flights FlightLookup, gen *ics.Generator, m *metrics.Metrics) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}
	s := &Server{
		cfg:      cfg,
		flights:  flights,
		gen:      gen,
		loc:      loc,
		metrics:  m,
		mux:      http.NewServeMux(),
		cache:    make(map[cacheKey]cachedFlight),
		cacheTTL: 60 * time.Second,
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestIDMiddleware(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="FlightCal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware tags each request with an id (reusing the client's
// X-Request-Id when present) and logs its outcome.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		appLog.Info("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// StartServer runs the HTTP server on cfg.Listen until ctx is cancelled,
// then shuts it down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/flights", s.handleFlight)
	s.mux.HandleFunc("/api/flights/ics", s.handleFlightICS)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// FlightView is the JSON shape of /api/flights: the flight plus the data
// derived from it for display.
type FlightView struct {
	Flight          model.Flight `json:"flight"`
	Duration        string       `json:"duration,omitempty"`
	DurationMinutes int          `json:"duration_minutes,omitempty"`
	LogoURL         string       `json:"logo_url,omitempty"`
	DepartureClock  string       `json:"departure_clock"`
	ArrivalClock    string       `json:"arrival_clock"`
	Codeshare       string       `json:"codeshare,omitempty"`
	DisplayTimeZone string       `json:"display_timezone"`
	QuickAddLink    string       `json:"quick_add_link"`
	Description     []string     `json:"description"`
	ICSFileName     string       `json:"ics_file_name"`
}

// NewFlightView derives the display data for f. Clock times are shown in
// loc (time.Local when nil).
func NewFlightView(f model.Flight, gen *ics.Generator, loc *time.Location) FlightView {
	if loc == nil {
		loc = time.Local
	}
	v := FlightView{
		Flight:          f,
		LogoURL:         f.LogoURL(),
		DisplayTimeZone: loc.String(),
		QuickAddLink:    gen.QuickAddLink(f),
		Description:     gen.Description(f),
		ICSFileName:     ics.FileName(f.FlightNumber),
	}
	if d, ok := f.Duration(); ok {
		v.Duration = model.FormatDuration(d)
		v.DurationMinutes = int(d.Minutes())
	}
	v.DepartureClock, v.ArrivalClock = f.ClockTimes(loc)
	if cs, ok := f.ReportableCodeshare(); ok {
		v.Codeshare = cs
	}
	return v
}

// handleFlight looks up a flight and returns it with the derived card data
// and the quick-add link.
//
// GET /api/flights?number=BA1326&date=2024-06-01
func (s *Server) handleFlight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	f, ok := s.lookupFlight(w, r)
	if !ok {
		return
	}
	s.observeArtifact("link", "ok")

	writeJSON(w, http.StatusOK, NewFlightView(f, s.gen, s.loc))
}

// handleFlightICS returns the flight's calendar file as an attachment.
//
// GET /api/flights/ics?number=BA1326&date=2024-06-01
func (s *Server) handleFlightICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	f, ok := s.lookupFlight(w, r)
	if !ok {
		return
	}

	content, err := s.gen.CalendarFile(f)
	if err != nil {
		s.observeArtifact("ics", "error")
		var ferr *ics.FormattingError
		if errors.As(err, &ferr) {
			writeError(w, http.StatusUnprocessableEntity, "failed to generate calendar file: "+err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to generate calendar file")
		return
	}
	s.observeArtifact("ics", "ok")

	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.FileName(f.FlightNumber)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// lookupFlight resolves the request's flight, serving from the cache when
// possible. On failure it writes the error response and returns false.
func (s *Server) lookupFlight(w http.ResponseWriter, r *http.Request) (model.Flight, bool) {
	q := lookup.Query{
		FlightNumber: strings.TrimSpace(r.URL.Query().Get("number")),
		Date:         strings.TrimSpace(r.URL.Query().Get("date")),
		APIKey:       strings.TrimSpace(r.Header.Get(APIKeyHeader)),
	}
	key := cacheKey{number: q.FlightNumber, date: q.Date, apiKey: q.APIKey}

	s.cacheMu.RLock()
	c, hit := s.cache[key]
	s.cacheMu.RUnlock()
	if hit && s.now().Sub(c.updatedAt) < s.cacheTTL {
		return c.flight, true
	}

	f, err := s.flights.Lookup(r.Context(), q)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return model.Flight{}, false
	}

	s.cacheMu.Lock()
	s.pruneLocked()
	s.cache[key] = cachedFlight{flight: f, updatedAt: s.now()}
	s.cacheMu.Unlock()

	return f, true
}

func (s *Server) pruneLocked() {
	now := s.now()
	for k, c := range s.cache {
		if now.Sub(c.updatedAt) >= s.cacheTTL {
			delete(s.cache, k)
		}
	}
}

func (s *Server) observeArtifact(kind, result string) {
	if s.metrics != nil {
		s.metrics.Artifacts.WithLabelValues(kind, result).Inc()
	}
}

// statusFor maps lookup errors to HTTP status codes.
func statusFor(err error) int {
	var (
		eerr *aerodatabox.EmptyResultError
		verr *aerodatabox.ValidationError
		terr *aerodatabox.TransportError
	)
	switch {
	case errors.Is(err, lookup.ErrMissingInput), errors.Is(err, aerodatabox.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.As(err, &eerr):
		return http.StatusNotFound
	case isTimeout(err):
		return http.StatusGatewayTimeout
	case errors.As(err, &verr), errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isTimeout reports a request that ran out of time, whether through the
// caller's context or the provider client's own timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
