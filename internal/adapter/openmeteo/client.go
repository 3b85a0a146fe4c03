// Package openmeteo implements forecast retrieval against the Open-Meteo
// API, plus the single-slot freshness cache that fronts it.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

var (
	currentFields = []string{
		"temperature_2m",
		"apparent_temperature",
		"relative_humidity_2m",
		"wind_speed_10m",
		"wind_gusts_10m",
		"wind_direction_10m",
		"uv_index",
		"cloud_cover",
		"precipitation",
	}
	hourlyFields = []string{
		"temperature_2m",
		"apparent_temperature",
		"relative_humidity_2m",
		"uv_index",
		"cloud_cover",
		"wind_speed_10m",
		"wind_gusts_10m",
		"wind_direction_10m",
		"precipitation",
		"precipitation_probability",
	}
)

// Client implements domain.ForecastProvider using the Open-Meteo forecast
// endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo forecast client.
func NewClient(baseURL string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    breaker,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Forecast retrieves the current reading plus a 48-hour hourly series and
// normalizes it into a snapshot. Transport failures and non-2xx responses
// return a *domain.WeatherFetchError; malformed numeric fields are recovered
// by clamping and defaulting, never surfaced as a failure.
func (c *Client) Forecast(ctx context.Context, at domain.Coordinates) (domain.WeatherSnapshot, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	params.Set("current", joinFields(currentFields))
	params.Set("hourly", joinFields(hourlyFields))
	params.Set("wind_speed_unit", "ms")
	params.Set("precipitation_unit", "mm")
	params.Set("timezone", "auto")
	params.Set("timeformat", "unixtime")
	params.Set("forecast_days", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.WeatherSnapshot{}, &domain.WeatherFetchError{Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &domain.WeatherFetchError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return nil, &domain.WeatherFetchError{StatusCode: resp.StatusCode, Message: string(snippet)}
		}

		var payload response
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, &domain.WeatherFetchError{Err: fmt.Errorf("decode response: %w", err)}
		}
		return payload, nil
	})
	c.metrics.UpstreamDuration.WithLabelValues("openmeteo").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherFetches.WithLabelValues("error").Inc()
		if fetchErr, ok := err.(*domain.WeatherFetchError); ok {
			return domain.WeatherSnapshot{}, fetchErr
		}
		// Breaker-open and other wrapper errors still surface as typed failures.
		return domain.WeatherSnapshot{}, &domain.WeatherFetchError{Err: err}
	}

	payload := result.(response)
	snap := domain.NewSnapshot(payload.current(), payload.hourly(), c.clock.Now())
	c.metrics.WeatherFetches.WithLabelValues("success").Inc()
	return snap, nil
}

func joinFields(fields []string) string {
	out := fields[0]
	for _, f := range fields[1:] {
		out += "," + f
	}
	return out
}

// Open-Meteo API response types. Hourly data arrives as parallel arrays
// sharing the time axis.

type response struct {
	Current currentPayload `json:"current"`
	Hourly  hourlyPayload  `json:"hourly"`
}

type currentPayload struct {
	Time                int64   `json:"time"`
	Temperature2m       float64 `json:"temperature_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	RelativeHumidity2m  float64 `json:"relative_humidity_2m"`
	WindSpeed10m        float64 `json:"wind_speed_10m"`
	WindGusts10m        float64 `json:"wind_gusts_10m"`
	WindDirection10m    float64 `json:"wind_direction_10m"`
	UVIndex             float64 `json:"uv_index"`
	CloudCover          float64 `json:"cloud_cover"`
	Precipitation       float64 `json:"precipitation"`
}

type hourlyPayload struct {
	Time                     []int64   `json:"time"`
	Temperature2m            []float64 `json:"temperature_2m"`
	ApparentTemperature      []float64 `json:"apparent_temperature"`
	RelativeHumidity2m       []float64 `json:"relative_humidity_2m"`
	UVIndex                  []float64 `json:"uv_index"`
	CloudCover               []float64 `json:"cloud_cover"`
	WindSpeed10m             []float64 `json:"wind_speed_10m"`
	WindGusts10m             []float64 `json:"wind_gusts_10m"`
	WindDirection10m         []float64 `json:"wind_direction_10m"`
	Precipitation            []float64 `json:"precipitation"`
	PrecipitationProbability []float64 `json:"precipitation_probability"`
}

func (r response) current() domain.ConditionSet {
	cur := r.Current
	return domain.ConditionSet{
		Time:                time.Unix(cur.Time, 0).UTC(),
		WindSpeed:           cur.WindSpeed10m,
		WindGust:            cur.WindGusts10m,
		WindDirection:       cur.WindDirection10m,
		Temperature:         cur.Temperature2m,
		ApparentTemperature: cur.ApparentTemperature,
		Humidity:            cur.RelativeHumidity2m,
		UVIndex:             cur.UVIndex,
		CloudCover:          cur.CloudCover,
		Precipitation:       cur.Precipitation,
	}
}

// hourly zips the parallel arrays into per-slot condition sets. The arrays
// should share a length; a short array contributes zeros past its end rather
// than truncating the series.
func (r response) hourly() []domain.ConditionSet {
	h := r.Hourly
	out := make([]domain.ConditionSet, len(h.Time))
	for i := range h.Time {
		out[i] = domain.ConditionSet{
			Time:                time.Unix(h.Time[i], 0).UTC(),
			WindSpeed:           at(h.WindSpeed10m, i),
			WindGust:            at(h.WindGusts10m, i),
			WindDirection:       at(h.WindDirection10m, i),
			Temperature:         at(h.Temperature2m, i),
			ApparentTemperature: at(h.ApparentTemperature, i),
			Humidity:            at(h.RelativeHumidity2m, i),
			UVIndex:             at(h.UVIndex, i),
			CloudCover:          at(h.CloudCover, i),
			Precipitation:       at(h.Precipitation, i),
			PrecipProbability:   domain.ClampPercent(at(h.PrecipitationProbability, i)) / 100,
		}
	}
	return out
}

func at(arr []float64, i int) float64 {
	if i < len(arr) {
		return arr[i]
	}
	return 0
}
