package eta

import (
	"errors"
	"fmt"
)

// Adapter-level failures. Timeouts and unavailability are transient and may
// be retried; schema errors are permanent for that response.
var (
	ErrUpstreamTimeout     = errors.New("upstream timed out")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrAllProvidersUnavailable is returned by an aggregate query only when
// every requested provider failed.
var ErrAllProvidersUnavailable = errors.New("all providers unavailable")

// Service-condition errors reported by an upstream in place of ETA data.
var (
	ErrEndOfService    = errors.New("service has ended for today")
	ErrStationClosed   = errors.New("station is closed")
	ErrAbnormalService = errors.New("special service arrangement in effect")
)

// UpstreamSchemaError reports a response body that could not be parsed into
// the provider's published schema.
type UpstreamSchemaError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *UpstreamSchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *UpstreamSchemaError) Unwrap() error { return e.Err }

// UpstreamErrorResponse is an operator notice returned by the upstream in
// place of ETA data, such as a typhoon suspension remark.
type UpstreamErrorResponse struct {
	Provider Provider
	Message  string
}

func (e *UpstreamErrorResponse) Error() string {
	return fmt.Sprintf("%s responded with error: %s", e.Provider, e.Message)
}
