// Package geoip implements the geolocation capability for a headless
// deployment: either an IP-based position lookup against the unauthenticated
// ip-api.com endpoint, or a fixed position from configuration.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

// Client resolves the device position from its public IP address.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	lastFix domain.Coordinates
	lastAt  time.Time
	hasFix  bool
}

// NewClient creates an IP-geolocation position source.
func NewClient(baseURL string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// RequestPosition performs a single-shot lookup bounded by req.Timeout. A
// previous fix no older than req.MaximumAge satisfies the request without a
// network call. Deadline expiry maps to domain.ErrLocationTimeout; IP
// geolocation has no permission concept, so domain.ErrLocationDenied is
// never produced here.
func (c *Client) RequestPosition(ctx context.Context, req domain.PositionRequest) (domain.Coordinates, error) {
	c.mu.Lock()
	if c.hasFix && req.MaximumAge > 0 && c.clock.Since(c.lastAt) <= req.MaximumAge {
		fix := c.lastFix
		c.mu.Unlock()
		return fix, nil
	}
	c.mu.Unlock()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	u := c.baseURL + "/json/?fields=status,message,lat,lon"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("create request: %w", err)
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.UpstreamDuration.WithLabelValues("geoip").Observe(c.clock.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return domain.Coordinates{}, domain.ErrLocationTimeout
		}
		return domain.Coordinates{}, fmt.Errorf("position request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Coordinates{}, fmt.Errorf("geoip API error: status %d", resp.StatusCode)
	}

	var payload struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.Status != "success" {
		return domain.Coordinates{}, fmt.Errorf("geoip lookup failed: %s", payload.Message)
	}

	coords := domain.Coordinates{Lat: payload.Lat, Lon: payload.Lon}
	if !coords.Valid() {
		return domain.Coordinates{}, fmt.Errorf("geoip returned out-of-range position (%v, %v)", payload.Lat, payload.Lon)
	}

	c.mu.Lock()
	c.lastFix = coords
	c.lastAt = c.clock.Now()
	c.hasFix = true
	c.mu.Unlock()

	return coords, nil
}

// PermissionState reports granted: IP lookup needs no user consent.
func (c *Client) PermissionState(_ context.Context) (domain.PermissionState, error) {
	return domain.PermissionGranted, nil
}

// Fixed is a constant position source for deployments pinned to one course.
type Fixed struct {
	Coords domain.Coordinates
}

func (f Fixed) RequestPosition(_ context.Context, _ domain.PositionRequest) (domain.Coordinates, error) {
	return f.Coords, nil
}

func (f Fixed) PermissionState(_ context.Context) (domain.PermissionState, error) {
	return domain.PermissionGranted, nil
}
