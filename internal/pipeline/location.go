package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

// LocationStatus enumerates the location state machine.
type LocationStatus string

const (
	LocationIdle    LocationStatus = "idle"
	LocationPrompt  LocationStatus = "prompt"
	LocationGranted LocationStatus = "granted"
	LocationDenied  LocationStatus = "denied"
	LocationError   LocationStatus = "error"
)

// LocationState is a tagged snapshot of the state machine. Coords is set
// only in the granted state; Err only in the error state.
type LocationState struct {
	Status LocationStatus      `json:"status"`
	Coords *domain.Coordinates `json:"coords,omitempty"`
	Err    string              `json:"error,omitempty"`
}

// LocationProvider wraps a position source into the
// idle/prompt/granted/denied/error machine. It publishes coordinate
// availability to subscribers and nothing more: downstream lookups are the
// subscribers' business.
type LocationProvider struct {
	source       domain.PositionSource // nil means no capability at all
	timeout      time.Duration
	maxAge       time.Duration
	highAccuracy bool
	metrics      *observability.Metrics
	logger       *slog.Logger

	mu    sync.Mutex
	state LocationState
	busy  bool
	subs  []func(domain.Coordinates)
}

// NewLocationProvider creates the provider in the idle state. Pass a nil
// source to model a platform without any location capability.
func NewLocationProvider(source domain.PositionSource, timeout, maxAge time.Duration, highAccuracy bool, metrics *observability.Metrics, logger *slog.Logger) *LocationProvider {
	return &LocationProvider{
		source:       source,
		timeout:      timeout,
		maxAge:       maxAge,
		highAccuracy: highAccuracy,
		metrics:      metrics,
		logger:       logger,
		state:        LocationState{Status: LocationIdle},
	}
}

// State returns the current machine state.
func (p *LocationProvider) State() LocationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe registers a coordinate observer. Observers run synchronously in
// the goroutine that completed the position request.
func (p *LocationProvider) Subscribe(fn func(domain.Coordinates)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Probe sets the initial state from the permission-query capability without
// prompting. Sources that cannot probe leave the machine in prompt; a
// missing source leaves it idle so Request can fail fast later.
func (p *LocationProvider) Probe(ctx context.Context) {
	if p.source == nil {
		return
	}

	status := LocationPrompt
	if prober, ok := p.source.(domain.PermissionProber); ok {
		switch state, err := prober.PermissionState(ctx); {
		case err != nil:
			p.logger.Warn("permission probe failed", "error", err)
		case state == domain.PermissionGranted:
			status = LocationGranted
		case state == domain.PermissionDenied:
			status = LocationDenied
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A probe never clears coordinates a prior grant already produced.
	if p.state.Coords == nil {
		p.state = LocationState{Status: status}
	}
}

// OnPermissionChange applies an external permission-change notification.
// Coordinates survive only while the permission stays granted.
func (p *LocationProvider) OnPermissionChange(state domain.PermissionState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch state {
	case domain.PermissionGranted:
		if p.state.Status != LocationGranted {
			p.state = LocationState{Status: LocationGranted}
		}
	case domain.PermissionDenied:
		p.state = LocationState{Status: LocationDenied}
	default:
		p.state = LocationState{Status: LocationPrompt}
	}
}

// Request issues a single-shot position request. It fails fast to the error
// state when no capability exists, and it is a no-op while another request
// is in flight. The request is bounded by the configured timeout; denial,
// timeout, and other failures land in their respective states. On success
// the machine enters granted and subscribers observe the coordinates.
func (p *LocationProvider) Request(ctx context.Context) {
	if p.source == nil {
		p.mu.Lock()
		p.state = LocationState{Status: LocationError, Err: domain.ErrLocationUnsupported.Error()}
		p.mu.Unlock()
		p.metrics.LocationRequests.WithLabelValues("error").Inc()
		return
	}

	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	coords, err := p.source.RequestPosition(ctx, domain.PositionRequest{
		Timeout:      p.timeout,
		MaximumAge:   p.maxAge,
		HighAccuracy: p.highAccuracy,
	})
	if err != nil {
		p.fail(err)
		return
	}

	p.mu.Lock()
	p.state = LocationState{Status: LocationGranted, Coords: &coords}
	subs := make([]func(domain.Coordinates), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	p.metrics.LocationRequests.WithLabelValues("granted").Inc()
	p.logger.Info("position acquired", "lat", coords.Lat, "lon", coords.Lon)

	for _, fn := range subs {
		fn(coords)
	}
}

func (p *LocationProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case errors.Is(err, domain.ErrLocationDenied):
		p.state = LocationState{Status: LocationDenied}
		p.metrics.LocationRequests.WithLabelValues("denied").Inc()
		p.logger.Info("position request denied")
	default:
		// Timeouts and transport failures alike: an expected steady
		// state rendered as status text, not an escalation.
		p.state = LocationState{Status: LocationError, Err: err.Error()}
		p.metrics.LocationRequests.WithLabelValues("error").Inc()
		p.logger.Warn("position request failed", "error", err)
	}
}
