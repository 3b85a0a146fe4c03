package domain

import (
	"context"
	"time"
)

// PermissionState mirrors the platform permission probe results.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// PositionRequest bounds a single-shot position request.
type PositionRequest struct {
	// Timeout is the hard deadline for the request.
	Timeout time.Duration
	// MaximumAge is how stale a previously acquired position may be and
	// still satisfy the request.
	MaximumAge time.Duration
	// HighAccuracy asks the source for its best fix at the cost of latency.
	HighAccuracy bool
}

// PositionSource is the geolocation capability the pipeline composes over.
// Failures map onto the location error taxonomy: ErrLocationDenied when the
// source refuses, ErrLocationTimeout on deadline expiry, anything else is an
// ordinary error the provider reports as its error state.
type PositionSource interface {
	RequestPosition(ctx context.Context, req PositionRequest) (Coordinates, error)
}

// PermissionProber is the optional permission-query capability. Sources that
// cannot probe without prompting simply do not implement it; the provider
// then defaults to the prompt state.
type PermissionProber interface {
	PermissionState(ctx context.Context) (PermissionState, error)
}
