// Package pipeline composes the location provider, course resolver,
// selection state, and weather fetcher into a single consistent view model.
// It owns the staleness and race-avoidance rules: per-pipeline
// last-issued-wins sequencing, and manual-selection priority over automatic
// resolution.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

// prefsKey is the persistence-store key for display preferences.
const prefsKey = "prefs"

// opTimeout bounds one background acquisition pass (resolution + fetch).
const opTimeout = 30 * time.Second

var errNotStarted = errors.New("pipeline not started")

// ViewModel is the read-only projection handed to the presentation layer.
type ViewModel struct {
	Location    LocationState           `json:"location"`
	CourseLabel string                  `json:"course_label,omitempty"`
	Manual      bool                    `json:"manual"`
	Units       domain.Units            `json:"units"`
	Weather     *domain.WeatherSnapshot `json:"weather,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	LastUpdated *time.Time              `json:"last_updated,omitempty"`
}

// Controller is the root of the acquisition pipeline.
type Controller struct {
	location  *LocationProvider
	finder    domain.CourseFinder
	forecasts domain.ForecastProvider
	selection *Selection
	store     domain.Store
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	// Independent token sequences: course resolution and weather fetch
	// supersede within their own pipeline only.
	courseSeq  sequence
	weatherSeq sequence

	mu        sync.Mutex
	units     domain.Units
	snapshot  *domain.WeatherSnapshot
	lastErr   string
	updatedAt *time.Time

	started atomic.Bool
}

type persistedPrefs struct {
	Units domain.Units `json:"units"`
}

// NewController creates the controller, restoring the persisted unit
// preference when one exists.
func NewController(
	location *LocationProvider,
	finder domain.CourseFinder,
	forecasts domain.ForecastProvider,
	selection *Selection,
	store domain.Store,
	clock clockwork.Clock,
	defaultUnits domain.Units,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Controller {
	units := defaultUnits
	if raw, ok := store.Get(prefsKey); ok {
		var prefs persistedPrefs
		if err := json.Unmarshal([]byte(raw), &prefs); err == nil && prefs.Units.Valid() {
			units = prefs.Units
		}
	}

	return &Controller{
		location:  location,
		finder:    finder,
		forecasts: forecasts,
		selection: selection,
		store:     store,
		clock:     clock,
		units:     units,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start wires the controller to coordinate announcements. The location
// provider stays the only component that talks to the position source; the
// controller merely reacts to what it publishes.
func (c *Controller) Start() {
	c.location.Subscribe(c.onCoordinates)
	c.started.Store(true)
}

// CheckReadiness reports whether the controller is serving.
func (c *Controller) CheckReadiness(_ context.Context) error {
	if !c.started.Load() {
		return errNotStarted
	}
	return nil
}

// View assembles the current view model. The snapshot pointer is shared:
// snapshots are immutable once built, replaced atomically on each fetch.
func (c *Controller) View() ViewModel {
	course, manual := c.selection.Current()

	c.mu.Lock()
	defer c.mu.Unlock()

	vm := ViewModel{
		Location:    c.location.State(),
		Manual:      manual,
		Units:       c.units,
		Weather:     c.snapshot,
		LastError:   c.lastErr,
		LastUpdated: c.updatedAt,
	}
	if course != nil {
		vm.CourseLabel = course.Name
	}
	return vm
}

// RequestLocation triggers a position request without blocking the caller.
func (c *Controller) RequestLocation() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		c.location.Request(ctx)
	}()
}

// SelectCourse applies a manual pick. A nameless pick (a raw query the
// search found nothing for) becomes a custom course under the fallback
// label; weather then keys off device coordinates.
func (c *Controller) SelectCourse(course domain.Course) {
	if strings.TrimSpace(course.Name) == "" {
		course.Name = domain.UnnamedCourseLabel
	}
	c.selection.AdoptManual(course)
	c.logger.Info("course selected manually", "course", course.Name)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		c.Refresh(ctx)
	}()
}

// ClearManualSelection drops the manual override and re-enters the
// automatic path with a fresh location request. The course itself is kept
// until automatic resolution replaces it.
func (c *Controller) ClearManualSelection() {
	c.selection.ClearManual()
	c.RequestLocation()
}

// ToggleUnits flips the unit preference, persists it, and returns the new
// value.
func (c *Controller) ToggleUnits() domain.Units {
	c.mu.Lock()
	c.units = c.units.Toggle()
	units := c.units
	c.mu.Unlock()

	raw, err := json.Marshal(persistedPrefs{Units: units})
	if err == nil {
		if err := c.store.Set(prefsKey, string(raw)); err != nil {
			c.logger.Warn("persist unit preference failed", "error", err)
		}
	}
	return units
}

// SearchCourses runs a name search, scoped to the device position when one
// is known.
func (c *Controller) SearchCourses(ctx context.Context, query string) ([]domain.Course, error) {
	return c.finder.SearchByName(ctx, query, c.location.State().Coords)
}

// Refresh re-fetches weather for the active target: the selected course
// when it has usable coordinates, the device position otherwise. A no-op
// until either exists.
func (c *Controller) Refresh(ctx context.Context) {
	target, ok := c.target()
	if !ok {
		return
	}
	c.fetchWeather(ctx, target)
}

// onCoordinates handles a coordinate announcement: resolve the nearest
// course unless a manual pick is active, then fetch weather for whatever
// the selection now points at.
func (c *Controller) onCoordinates(coords domain.Coordinates) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	c.resolveCourse(ctx, coords)

	target, ok := c.target()
	if !ok {
		target = coords
	}
	c.fetchWeather(ctx, target)
}

func (c *Controller) resolveCourse(ctx context.Context, coords domain.Coordinates) {
	if _, manual := c.selection.Current(); manual {
		return
	}

	token := c.courseSeq.issue()
	course, err := c.finder.NearestCourse(ctx, coords)

	if !c.courseSeq.latest(token) {
		c.metrics.StaleDropped.WithLabelValues("course").Inc()
		return
	}
	if err != nil {
		// Prior selection stays; the failure is rendered, not fatal.
		c.setError(err.Error())
		c.logger.Warn("nearest-course resolution failed", "error", err)
		return
	}
	if course == nil {
		c.logger.Info("no course within search radius", "lat", coords.Lat, "lon", coords.Lon)
		return
	}

	if c.selection.AdoptAutomatic(*course) {
		c.logger.Info("course resolved automatically", "course", course.Name, "distance_km", course.DistanceKm)
	}
}

func (c *Controller) fetchWeather(ctx context.Context, coords domain.Coordinates) {
	token := c.weatherSeq.issue()
	snap, err := c.forecasts.Forecast(ctx, coords)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.weatherSeq.latest(token) {
		c.metrics.StaleDropped.WithLabelValues("weather").Inc()
		return
	}
	if err != nil {
		// Last good snapshot stays visible next to the error text.
		c.lastErr = err.Error()
		c.logger.Warn("weather fetch failed", "error", err)
		return
	}

	now := c.clock.Now()
	c.snapshot = &snap
	c.updatedAt = &now
	c.lastErr = ""
}

// target picks the coordinates weather should be fetched for. A manual
// custom course may carry no coordinates; (0,0) marks that absence, and the
// device position fills in.
func (c *Controller) target() (domain.Coordinates, bool) {
	course, _ := c.selection.Current()
	if course != nil && (course.Coords.Lat != 0 || course.Coords.Lon != 0) {
		return course.Coords, true
	}
	if coords := c.location.State().Coords; coords != nil {
		return *coords, true
	}
	return domain.Coordinates{}, false
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}
