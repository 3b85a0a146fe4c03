package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fairway-conditions/internal/adapter/filestore"
	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

type fakeFinder struct {
	mu          sync.Mutex
	nearest     func(ctx context.Context, origin domain.Coordinates) (*domain.Course, error)
	search      func(ctx context.Context, query string, near *domain.Coordinates) ([]domain.Course, error)
	nearestDone chan struct{} // when set, nearest entry is signalled here
}

func (f *fakeFinder) NearestCourse(ctx context.Context, origin domain.Coordinates) (*domain.Course, error) {
	f.mu.Lock()
	done := f.nearestDone
	f.mu.Unlock()
	if done != nil {
		done <- struct{}{}
	}
	return f.nearest(ctx, origin)
}

func (f *fakeFinder) SearchByName(ctx context.Context, query string, near *domain.Coordinates) ([]domain.Course, error) {
	return f.search(ctx, query, near)
}

type fakeForecast struct {
	mu       sync.Mutex
	forecast func(ctx context.Context, at domain.Coordinates) (domain.WeatherSnapshot, error)
	calls    []domain.Coordinates
}

func (f *fakeForecast) Forecast(ctx context.Context, at domain.Coordinates) (domain.WeatherSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, at)
	f.mu.Unlock()
	return f.forecast(ctx, at)
}

func (f *fakeForecast) fetchedCoords() []domain.Coordinates {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Coordinates, len(f.calls))
	copy(out, f.calls)
	return out
}

func snapshotAt(temp float64) domain.WeatherSnapshot {
	return domain.WeatherSnapshot{
		Current:   domain.ConditionSet{Temperature: temp},
		FetchedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

type controllerFixture struct {
	controller *Controller
	provider   *LocationProvider
	selection  *Selection
	source     *fakeSource
	finder     *fakeFinder
	forecast   *fakeForecast
	store      *filestore.Memory
	clock      *clockwork.FakeClock
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	source := &fakeSource{coords: domain.Coordinates{Lat: 33.45, Lon: -112.07}}
	finder := &fakeFinder{
		nearest: func(context.Context, domain.Coordinates) (*domain.Course, error) {
			return &domain.Course{ID: "way/1", Name: "Papago", Coords: domain.Coordinates{Lat: 33.46, Lon: -111.95}, DistanceKm: 11.2}, nil
		},
		search: func(context.Context, string, *domain.Coordinates) ([]domain.Course, error) {
			return nil, nil
		},
	}
	forecast := &fakeForecast{
		forecast: func(context.Context, domain.Coordinates) (domain.WeatherSnapshot, error) {
			return snapshotAt(21.5), nil
		},
	}
	store := filestore.NewMemory()
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0).UTC())
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	provider := NewLocationProvider(source, 8*time.Second, 45*time.Second, true, metrics, logger)
	selection := NewSelection(store, logger)
	controller := NewController(provider, finder, forecast, selection, store, clock, domain.UnitsImperial, metrics, logger)
	controller.Start()

	return &controllerFixture{
		controller: controller,
		provider:   provider,
		selection:  selection,
		source:     source,
		finder:     finder,
		forecast:   forecast,
		store:      store,
		clock:      clock,
	}
}

func TestController_AutomaticFlow(t *testing.T) {
	fx := newControllerFixture(t)

	fx.provider.Request(context.Background())

	vm := fx.controller.View()
	assert.Equal(t, LocationGranted, vm.Location.Status)
	assert.Equal(t, "Papago", vm.CourseLabel)
	assert.False(t, vm.Manual)
	require.NotNil(t, vm.Weather)
	assert.InDelta(t, 21.5, vm.Weather.Current.Temperature, 1e-9)
	assert.Empty(t, vm.LastError)
	require.NotNil(t, vm.LastUpdated)
	assert.Equal(t, fx.clock.Now(), *vm.LastUpdated)

	// Weather keyed off the resolved course, not the raw device position.
	coords := fx.forecast.fetchedCoords()
	require.Len(t, coords, 1)
	assert.InDelta(t, 33.46, coords[0].Lat, 1e-9)
}

func TestController_NoCourseNearbyFallsBackToDeviceCoords(t *testing.T) {
	fx := newControllerFixture(t)
	fx.finder.nearest = func(context.Context, domain.Coordinates) (*domain.Course, error) {
		return nil, nil
	}

	fx.provider.Request(context.Background())

	vm := fx.controller.View()
	assert.Empty(t, vm.CourseLabel)
	require.NotNil(t, vm.Weather)
	assert.Empty(t, vm.LastError, "an empty search area is not a failure")

	coords := fx.forecast.fetchedCoords()
	require.Len(t, coords, 1)
	assert.InDelta(t, 33.45, coords[0].Lat, 1e-9)
}

func TestController_LookupErrorKeepsPriorSelection(t *testing.T) {
	fx := newControllerFixture(t)
	fx.provider.Request(context.Background())
	require.Equal(t, "Papago", fx.controller.View().CourseLabel)

	fx.finder.nearest = func(context.Context, domain.Coordinates) (*domain.Course, error) {
		return nil, &domain.CourseLookupError{Err: context.DeadlineExceeded}
	}
	fx.provider.Request(context.Background())

	vm := fx.controller.View()
	assert.Equal(t, "Papago", vm.CourseLabel, "a failed lookup must not clear the selection")
	assert.NotEmpty(t, vm.LastError)
}

func TestController_ManualSelectionSurvivesInFlightResolution(t *testing.T) {
	fx := newControllerFixture(t)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fx.finder.nearestDone = entered
	fx.finder.nearest = func(context.Context, domain.Coordinates) (*domain.Course, error) {
		<-release
		return &domain.Course{ID: "way/2", Name: "Desert Pines", Coords: domain.Coordinates{Lat: 36.1, Lon: -115.1}}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.provider.Request(context.Background())
	}()

	// The automatic resolution is in flight; the user picks a course now.
	<-entered
	fx.selection.AdoptManual(domain.Course{ID: "way/3", Name: "Encanto", Coords: domain.Coordinates{Lat: 33.47, Lon: -112.09}})

	close(release)
	<-done

	course, manual := fx.selection.Current()
	require.NotNil(t, course)
	assert.Equal(t, "Encanto", course.Name, "in-flight automatic result must not displace the manual pick")
	assert.True(t, manual)
}

func TestController_StaleWeatherResponseDiscarded(t *testing.T) {
	fx := newControllerFixture(t)

	c1 := domain.Coordinates{Lat: 10, Lon: 10}
	c2 := domain.Coordinates{Lat: 20, Lon: 20}

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fx.forecast.forecast = func(_ context.Context, at domain.Coordinates) (domain.WeatherSnapshot, error) {
		if at == c1 {
			entered <- struct{}{}
			<-release
			return snapshotAt(11), nil
		}
		return snapshotAt(22), nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.controller.fetchWeather(context.Background(), c1)
	}()
	<-entered

	// The second fetch is issued after the first and completes first.
	fx.controller.fetchWeather(context.Background(), c2)

	close(release)
	<-done

	vm := fx.controller.View()
	require.NotNil(t, vm.Weather)
	assert.InDelta(t, 22, vm.Weather.Current.Temperature, 1e-9, "late first response must not clobber the newer one")
}

func TestController_FetchErrorKeepsLastGoodSnapshot(t *testing.T) {
	fx := newControllerFixture(t)
	fx.provider.Request(context.Background())
	require.NotNil(t, fx.controller.View().Weather)
	firstUpdated := fx.controller.View().LastUpdated

	fx.clock.Advance(time.Minute)
	fx.forecast.forecast = func(context.Context, domain.Coordinates) (domain.WeatherSnapshot, error) {
		return domain.WeatherSnapshot{}, &domain.WeatherFetchError{StatusCode: 502, Message: "bad gateway"}
	}
	fx.controller.Refresh(context.Background())

	vm := fx.controller.View()
	require.NotNil(t, vm.Weather)
	assert.InDelta(t, 21.5, vm.Weather.Current.Temperature, 1e-9)
	assert.Contains(t, vm.LastError, "bad gateway")
	assert.Equal(t, firstUpdated, vm.LastUpdated, "a failed fetch must not advance the freshness stamp")

	// A later success clears the error.
	fx.forecast.forecast = func(context.Context, domain.Coordinates) (domain.WeatherSnapshot, error) {
		return snapshotAt(23), nil
	}
	fx.controller.Refresh(context.Background())

	vm = fx.controller.View()
	assert.Empty(t, vm.LastError)
	assert.InDelta(t, 23, vm.Weather.Current.Temperature, 1e-9)
}

func TestController_RefreshWithoutTargetIsNoOp(t *testing.T) {
	fx := newControllerFixture(t)
	fx.controller.Refresh(context.Background())
	assert.Empty(t, fx.forecast.fetchedCoords())
}

func TestController_ManualCourseWithoutCoordsUsesDevicePosition(t *testing.T) {
	fx := newControllerFixture(t)
	fx.provider.Request(context.Background())

	fx.selection.AdoptManual(domain.Course{Name: "Custom spot"})
	fx.controller.Refresh(context.Background())

	coords := fx.forecast.fetchedCoords()
	require.NotEmpty(t, coords)
	last := coords[len(coords)-1]
	assert.InDelta(t, 33.45, last.Lat, 1e-9)
	assert.InDelta(t, -112.07, last.Lon, 1e-9)
}

func TestController_SelectCourseBlankNameGetsFallbackLabel(t *testing.T) {
	fx := newControllerFixture(t)

	fx.controller.SelectCourse(domain.Course{Name: "   "})

	course, manual := fx.selection.Current()
	require.NotNil(t, course)
	assert.Equal(t, domain.UnnamedCourseLabel, course.Name)
	assert.True(t, manual)
}

func TestController_ClearManualSelectionReentersAutomaticPath(t *testing.T) {
	fx := newControllerFixture(t)
	fx.controller.SelectCourse(domain.Course{Name: "Encanto"})

	fx.controller.ClearManualSelection()

	course, manual := fx.selection.Current()
	require.NotNil(t, course)
	assert.Equal(t, "Encanto", course.Name, "the course stays visible while re-resolving")
	assert.False(t, manual)

	// The background location request eventually drives a fresh resolution.
	require.Eventually(t, func() bool {
		return fx.controller.View().CourseLabel == "Papago"
	}, time.Second, time.Millisecond)
}

func TestController_ToggleUnitsPersists(t *testing.T) {
	fx := newControllerFixture(t)

	assert.Equal(t, domain.UnitsMetric, fx.controller.ToggleUnits())
	assert.Equal(t, domain.UnitsMetric, fx.controller.View().Units)

	raw, ok := fx.store.Get(prefsKey)
	require.True(t, ok)
	var prefs persistedPrefs
	require.NoError(t, json.Unmarshal([]byte(raw), &prefs))
	assert.Equal(t, domain.UnitsMetric, prefs.Units)

	// A rebuilt controller over the same store picks the preference up.
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	rebuilt := NewController(
		NewLocationProvider(fx.source, time.Second, time.Second, false, metrics, logger),
		fx.finder, fx.forecast, NewSelection(fx.store, logger),
		fx.store, fx.clock, domain.UnitsImperial, metrics, logger,
	)
	assert.Equal(t, domain.UnitsMetric, rebuilt.View().Units)
}

func TestController_InvalidPersistedUnitsFallBackToDefault(t *testing.T) {
	fx := newControllerFixture(t)
	require.NoError(t, fx.store.Set(prefsKey, `{"units":"kelvin"}`))

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	rebuilt := NewController(
		NewLocationProvider(fx.source, time.Second, time.Second, false, metrics, logger),
		fx.finder, fx.forecast, NewSelection(fx.store, logger),
		fx.store, fx.clock, domain.UnitsImperial, metrics, logger,
	)
	assert.Equal(t, domain.UnitsImperial, rebuilt.View().Units)
}

func TestController_SearchScopedToDevicePosition(t *testing.T) {
	fx := newControllerFixture(t)

	var gotNear *domain.Coordinates
	fx.finder.search = func(_ context.Context, query string, near *domain.Coordinates) ([]domain.Course, error) {
		gotNear = near
		return []domain.Course{{Name: "Papago"}}, nil
	}

	// Before any grant the search runs unscoped.
	_, err := fx.controller.SearchCourses(context.Background(), "papago")
	require.NoError(t, err)
	assert.Nil(t, gotNear)

	fx.provider.Request(context.Background())
	_, err = fx.controller.SearchCourses(context.Background(), "papago")
	require.NoError(t, err)
	require.NotNil(t, gotNear)
	assert.InDelta(t, 33.45, gotNear.Lat, 1e-9)
}

func TestController_CheckReadiness(t *testing.T) {
	fx := newControllerFixture(t)
	assert.NoError(t, fx.controller.CheckReadiness(context.Background()))

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	unstarted := NewController(
		NewLocationProvider(nil, time.Second, time.Second, false, metrics, logger),
		fx.finder, fx.forecast, NewSelection(filestore.NewMemory(), logger),
		filestore.NewMemory(), fx.clock, domain.UnitsImperial, metrics, logger,
	)
	assert.Error(t, unstarted.CheckReadiness(context.Background()))
}
