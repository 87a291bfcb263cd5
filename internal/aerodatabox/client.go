package aerodatabox

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "flightcal/internal/log"
)

const (
	DefaultBaseURL = "https://aerodatabox.p.rapidapi.com"
	DefaultHost    = "aerodatabox.p.rapidapi.com"

	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20
	maxErrorBody     = 512
)

// ErrInvalidDate is returned when the lookup date is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("aerodatabox: date must be formatted as YYYY-MM-DD")

// ErrResponseTooLarge is wrapped in a TransportError when the body exceeds
// the read limit.
var ErrResponseTooLarge = errors.New("response too large")

// Options configures a Client. Zero values fall back to the public RapidAPI
// endpoint and a 15s timeout.
type Options struct {
	BaseURL    string
	Host       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client fetches raw flight payloads from the AeroDataBox API.
type Client struct {
	client  *http.Client
	baseURL string
	host    string
}

// NewClient creates a new AeroDataBox client.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		client:  hc,
		baseURL: baseURL,
		host:    host,
	}
}

// FetchRaw performs GET /flights/number/{flightNumber}/{date} and returns the
// undecoded response body. Any non-2xx status is returned as a
// *TransportError carrying the status code.
func (c *Client) FetchRaw(ctx context.Context, flightNumber, date, apiKey string) ([]byte, error) {
	flightNumber = strings.TrimSpace(flightNumber)
	if flightNumber == "" {
		return nil, errors.New("aerodatabox: flight number is empty")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, ErrInvalidDate
	}

	reqURL := c.requestURL(flightNumber, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)
	req.Header.Set("Accept", "application/json")

	appLog.Info("flight fetch start", "flight_number", flightNumber, "date", date, "url", reqURL)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		terr := &TransportError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       strings.TrimSpace(string(body)),
		}
		appLog.Error("flight fetch non-OK", terr, "flight_number", flightNumber, "date", date, "body", terr.Body)
		return nil, terr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Status: statusText(resp), Err: err}
	}
	if len(body) > maxResponseBytes {
		terr := &TransportError{StatusCode: resp.StatusCode, Status: statusText(resp), Err: ErrResponseTooLarge}
		appLog.Error("flight fetch body over limit", terr, "flight_number", flightNumber, "date", date, "limit", maxResponseBytes)
		return nil, terr
	}

	appLog.Info("flight fetch success",
		"flight_number", flightNumber,
		"date", date,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start).String(),
	)
	return body, nil
}

func (c *Client) requestURL(flightNumber, date string) string {
	params := url.Values{}
	params.Set("withAircraftImage", "false")
	params.Set("withLocation", "false")
	params.Set("dateLocalRole", "Both")
	return c.baseURL + "/flights/number/" + url.PathEscape(flightNumber) + "/" + date + "?" + params.Encode()
}

// statusText returns the reason phrase without the leading code.
func statusText(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
