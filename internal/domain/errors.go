package domain

import (
	"errors"
	"fmt"
)

// Expected steady states of the location pipeline. Rendered as status text,
// never escalated past the controller.
var (
	// ErrLocationUnsupported means no position capability is wired at all.
	ErrLocationUnsupported = errors.New("no location capability available")

	// ErrLocationDenied means the platform refused the position request.
	ErrLocationDenied = errors.New("location permission denied")

	// ErrLocationTimeout means the position request exceeded its deadline.
	ErrLocationTimeout = errors.New("location request timed out")
)

// CourseLookupError is a transport or decode failure from the POI service.
// An empty result set is not an error; callers receive a nil course instead.
type CourseLookupError struct {
	Err error
}

func (e *CourseLookupError) Error() string {
	return fmt.Sprintf("course lookup failed: %v", e.Err)
}

func (e *CourseLookupError) Unwrap() error { return e.Err }

// WeatherFetchError is a transport failure or non-2xx response from the
// forecast service. It carries the upstream status so the caller can render
// a human-readable message; it is never silently swallowed.
type WeatherFetchError struct {
	StatusCode int // 0 when the request never produced a response
	Message    string
	Err        error
}

func (e *WeatherFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("weather fetch failed: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("weather fetch failed: %v", e.Err)
}

func (e *WeatherFetchError) Unwrap() error { return e.Err }
