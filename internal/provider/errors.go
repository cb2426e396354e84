package provider

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches any failure after the gateway exhausted its attempts.
var ErrUnavailable = errors.New("provider unavailable")

// StatusError is a non-retryable HTTP status from the provider.
type StatusError struct {
	Resource string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("provider %s: http %d: %s", e.Resource, e.Code, e.Body)
	}
	return fmt.Sprintf("provider %s: http %d", e.Resource, e.Code)
}

// UnavailableError is returned when every attempt failed transiently
// (rate limited or network errors).
type UnavailableError struct {
	Resource string
	Attempts int
	Last     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("provider %s: unreachable after %d attempts: %v", e.Resource, e.Attempts, e.Last)
}

func (e *UnavailableError) Unwrap() error { return e.Last }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// errRateLimited records a 429 as the last cause of an UnavailableError.
var errRateLimited = errors.New("rate limited (429)")
