// Package overpass implements course resolution against the Overpass API,
// the OpenStreetMap point-of-interest query endpoint. The upstream is
// unauthenticated and best-effort, so requests run behind a circuit breaker.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

const (
	nearestRadiusMeters = 30_000
	searchRadiusMeters  = 50_000
	searchLimit         = 10
	elementLimit        = 50
)

// Client implements domain.CourseFinder using Overpass leisure=golf_course
// queries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Overpass course finder.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "overpass",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    breaker,
		metrics:    metrics,
		logger:     logger,
	}
}

// NearestCourse returns the minimum-distance course within 30 km of origin,
// or (nil, nil) when the area holds none. Transport and decode failures come
// back as *domain.CourseLookupError.
func (c *Client) NearestCourse(ctx context.Context, origin domain.Coordinates) (*domain.Course, error) {
	query := fmt.Sprintf(`[out:json][timeout:15];
(
  node["leisure"="golf_course"](around:%d,%f,%f);
  way["leisure"="golf_course"](around:%d,%f,%f);
  relation["leisure"="golf_course"](around:%d,%f,%f);
);
out center tags %d;`,
		nearestRadiusMeters, origin.Lat, origin.Lon,
		nearestRadiusMeters, origin.Lat, origin.Lon,
		nearestRadiusMeters, origin.Lat, origin.Lon,
		elementLimit,
	)

	hits, err := c.run(ctx, query, &origin)
	if err != nil {
		c.metrics.CourseLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(hits) == 0 {
		c.metrics.CourseLookups.WithLabelValues("none").Inc()
		return nil, nil
	}

	best := hits[0]
	for _, hit := range hits[1:] {
		if hit.DistanceKm < best.DistanceKm {
			best = hit
		}
	}

	c.metrics.CourseLookups.WithLabelValues("found").Inc()
	return &best, nil
}

// SearchByName matches course names case-insensitively, scoped to 50 km
// around near when supplied, and returns at most ten hits sorted by
// distance when an origin is known. A blank query short-circuits to an
// empty result without a network call.
func (c *Client) SearchByName(ctx context.Context, query string, near *domain.Coordinates) ([]domain.Course, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	scope := ""
	if near != nil {
		scope = fmt.Sprintf("(around:%d,%f,%f)", searchRadiusMeters, near.Lat, near.Lon)
	}

	// QuoteMeta keeps user input from being interpreted as Overpass regex.
	pattern := regexp.QuoteMeta(trimmed)
	ql := fmt.Sprintf(`[out:json][timeout:15];
(
  node["leisure"="golf_course"]["name"~"%[1]s",i]%[2]s;
  way["leisure"="golf_course"]["name"~"%[1]s",i]%[2]s;
  relation["leisure"="golf_course"]["name"~"%[1]s",i]%[2]s;
);
out center tags %[3]d;`, escapeQL(pattern), scope, searchLimit)

	hits, err := c.run(ctx, ql, near)
	if err != nil {
		c.metrics.CourseSearches.WithLabelValues("error").Inc()
		return nil, err
	}

	if near != nil {
		sort.Slice(hits, func(i, j int) bool { return hits[i].DistanceKm < hits[j].DistanceKm })
	}
	if len(hits) > searchLimit {
		hits = hits[:searchLimit]
	}

	c.metrics.CourseSearches.WithLabelValues("ok").Inc()
	return hits, nil
}

// run posts an Overpass QL query and normalizes the hits. origin, when
// known, supplies the distance each hit is annotated with.
func (c *Client) run(ctx context.Context, query string, origin *domain.Coordinates) ([]domain.Course, error) {
	body := url.Values{"data": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(body))
	if err != nil {
		return nil, &domain.CourseLookupError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return nil, fmt.Errorf("overpass API error: status %d: %s", resp.StatusCode, snippet)
		}

		var payload response
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return payload, nil
	})
	c.metrics.UpstreamDuration.WithLabelValues("overpass").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &domain.CourseLookupError{Err: err}
	}

	payload := result.(response)
	return normalize(payload.Elements, origin), nil
}

// normalize converts raw Overpass elements to Course records. Ways and
// relations resolve through their computed center; elements with neither
// direct coordinates nor a center are discarded, never defaulted to (0,0).
func normalize(elements []element, origin *domain.Coordinates) []domain.Course {
	courses := make([]domain.Course, 0, len(elements))
	for _, el := range elements {
		coords, ok := el.coords()
		if !ok {
			continue
		}

		name := el.Tags["name"]
		if strings.TrimSpace(name) == "" {
			name = domain.UnnamedCourseLabel
		}

		course := domain.Course{
			ID:     fmt.Sprintf("%s/%d", el.Type, el.ID),
			Name:   name,
			Coords: coords,
		}
		if origin != nil {
			course.DistanceKm = domain.DistanceKm(*origin, coords)
		}
		courses = append(courses, course)
	}
	return courses
}

// escapeQL escapes the characters Overpass QL treats specially inside a
// double-quoted regex value.
func escapeQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// Overpass API response types.

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"` // "node", "way", or "relation"
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// coords resolves an element's usable position: direct lat/lon for nodes,
// the computed centroid for ways and relations.
func (el element) coords() (domain.Coordinates, bool) {
	if el.Lat != nil && el.Lon != nil {
		return domain.Coordinates{Lat: *el.Lat, Lon: *el.Lon}, true
	}
	if el.Center != nil {
		return domain.Coordinates{Lat: el.Center.Lat, Lon: el.Center.Lon}, true
	}
	return domain.Coordinates{}, false
}
