package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

type fakeSource struct {
	mu     sync.Mutex
	coords domain.Coordinates
	err    error
	calls  int
	block  chan struct{} // when set, RequestPosition waits for it to close
}

func (f *fakeSource) RequestPosition(ctx context.Context, _ domain.PositionRequest) (domain.Coordinates, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.Coordinates{}, domain.ErrLocationTimeout
		}
	}
	if f.err != nil {
		return domain.Coordinates{}, f.err
	}
	return f.coords, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProbingSource struct {
	fakeSource
	permission domain.PermissionState
	probeErr   error
}

func (f *fakeProbingSource) PermissionState(context.Context) (domain.PermissionState, error) {
	return f.permission, f.probeErr
}

func newTestProvider(source domain.PositionSource) *LocationProvider {
	return NewLocationProvider(
		source,
		8*time.Second,
		45*time.Second,
		true,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestLocationProvider_StartsIdle(t *testing.T) {
	provider := newTestProvider(&fakeSource{})
	assert.Equal(t, LocationIdle, provider.State().Status)
}

func TestLocationProvider_NilSourceFailsFast(t *testing.T) {
	provider := newTestProvider(nil)
	provider.Request(context.Background())

	state := provider.State()
	assert.Equal(t, LocationError, state.Status)
	assert.Equal(t, domain.ErrLocationUnsupported.Error(), state.Err)
}

func TestLocationProvider_SuccessNotifiesSubscribers(t *testing.T) {
	source := &fakeSource{coords: domain.Coordinates{Lat: 33.4, Lon: -111.9}}
	provider := newTestProvider(source)

	var got []domain.Coordinates
	provider.Subscribe(func(c domain.Coordinates) { got = append(got, c) })

	provider.Request(context.Background())

	state := provider.State()
	assert.Equal(t, LocationGranted, state.Status)
	require.NotNil(t, state.Coords)
	assert.InDelta(t, 33.4, state.Coords.Lat, 1e-9)

	require.Len(t, got, 1)
	assert.InDelta(t, -111.9, got[0].Lon, 1e-9)
}

func TestLocationProvider_DeniedState(t *testing.T) {
	provider := newTestProvider(&fakeSource{err: domain.ErrLocationDenied})
	provider.Request(context.Background())

	state := provider.State()
	assert.Equal(t, LocationDenied, state.Status)
	assert.Empty(t, state.Err, "denial is a status, not an error message")
	assert.Nil(t, state.Coords)
}

func TestLocationProvider_TimeoutLandsInErrorState(t *testing.T) {
	provider := newTestProvider(&fakeSource{err: domain.ErrLocationTimeout})
	provider.Request(context.Background())

	state := provider.State()
	assert.Equal(t, LocationError, state.Status)
	assert.Equal(t, domain.ErrLocationTimeout.Error(), state.Err)
}

func TestLocationProvider_TransportErrorLandsInErrorState(t *testing.T) {
	provider := newTestProvider(&fakeSource{err: errors.New("geoip upstream unreachable")})
	provider.Request(context.Background())

	state := provider.State()
	assert.Equal(t, LocationError, state.Status)
	assert.Contains(t, state.Err, "unreachable")
}

func TestLocationProvider_SingleFlight(t *testing.T) {
	block := make(chan struct{})
	source := &fakeSource{coords: domain.Coordinates{Lat: 1, Lon: 2}, block: block}
	provider := newTestProvider(source)

	done := make(chan struct{})
	go func() {
		defer close(done)
		provider.Request(context.Background())
	}()

	// Wait for the first request to reach the source, then pile on.
	require.Eventually(t, func() bool { return source.callCount() == 1 }, time.Second, time.Millisecond)
	provider.Request(context.Background())
	provider.Request(context.Background())

	close(block)
	<-done

	assert.Equal(t, 1, source.callCount(), "overlapping requests must coalesce")
	assert.Equal(t, LocationGranted, provider.State().Status)
}

func TestLocationProvider_ProbeSetsInitialState(t *testing.T) {
	tests := []struct {
		name       string
		permission domain.PermissionState
		want       LocationStatus
	}{
		{"granted", domain.PermissionGranted, LocationGranted},
		{"denied", domain.PermissionDenied, LocationDenied},
		{"prompt", domain.PermissionPrompt, LocationPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(&fakeProbingSource{permission: tt.permission})
			provider.Probe(context.Background())
			assert.Equal(t, tt.want, provider.State().Status)
		})
	}
}

func TestLocationProvider_ProbeWithoutCapabilityYieldsPrompt(t *testing.T) {
	provider := newTestProvider(&fakeSource{})
	provider.Probe(context.Background())
	assert.Equal(t, LocationPrompt, provider.State().Status)
}

func TestLocationProvider_ProbeKeepsExistingCoordinates(t *testing.T) {
	source := &fakeProbingSource{permission: domain.PermissionGranted}
	source.coords = domain.Coordinates{Lat: 40, Lon: -75}
	provider := newTestProvider(source)

	provider.Request(context.Background())
	require.NotNil(t, provider.State().Coords)

	provider.Probe(context.Background())
	assert.NotNil(t, provider.State().Coords, "probe must not discard an acquired position")
}

func TestLocationProvider_OnPermissionChange(t *testing.T) {
	source := &fakeSource{coords: domain.Coordinates{Lat: 40, Lon: -75}}
	provider := newTestProvider(source)
	provider.Request(context.Background())

	// Revocation drops both the status and the coordinates.
	provider.OnPermissionChange(domain.PermissionDenied)
	state := provider.State()
	assert.Equal(t, LocationDenied, state.Status)
	assert.Nil(t, state.Coords)

	provider.OnPermissionChange(domain.PermissionPrompt)
	assert.Equal(t, LocationPrompt, provider.State().Status)

	// A fresh grant restores the status but not a position; that takes a
	// new request.
	provider.OnPermissionChange(domain.PermissionGranted)
	state = provider.State()
	assert.Equal(t, LocationGranted, state.Status)
	assert.Nil(t, state.Coords)
}
