package aerodatabox

import (
	"fmt"
	"strings"
)

// TransportError reports a failed provider call. StatusCode is zero when the
// request never produced an HTTP response.
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("aerodatabox: request failed: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("aerodatabox: API request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("aerodatabox: API request failed with status %d: %s", e.StatusCode, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EmptyResultError means the provider answered but there is no flight to
// work with: an empty list, or a payload that is not a list at all.
type EmptyResultError struct {
	Reason string
}

func (e *EmptyResultError) Error() string {
	return "aerodatabox: no flight data returned: " + e.Reason
}

// ValidationError lists the required provider fields that were missing or
// unusable in the selected flight.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "aerodatabox: core flight data fields missing: " + strings.Join(e.Missing, ", ")
}
