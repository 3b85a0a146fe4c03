package domain

import (
	"context"
	"math"
	"time"
)

// hourlySkewTolerance absorbs timezone and rounding skew at the forecast
// provider when aligning the hourly series to "now".
const hourlySkewTolerance = 30 * time.Minute

// ConditionSet is one reading of every tracked field, either the current
// instant or one hourly slot. See the package doc for unit conventions.
type ConditionSet struct {
	Time                time.Time `json:"time"`
	WindSpeed           float64   `json:"wind_speed"`            // m/s
	WindGust            float64   `json:"wind_gust"`             // m/s
	WindDirection       float64   `json:"wind_direction"`        // degrees [0,360)
	Temperature         float64   `json:"temperature"`           // Celsius
	ApparentTemperature float64   `json:"apparent_temperature"`  // Celsius
	Humidity            float64   `json:"humidity"`              // percent [0,100]
	UVIndex             float64   `json:"uv_index"`
	CloudCover          float64   `json:"cloud_cover"`           // percent [0,100]
	Precipitation       float64   `json:"precipitation"`         // mm
	PrecipProbability   float64   `json:"precip_probability"`    // fraction [0,1]
}

// DerivedWindows are the headline aggregates over the aligned hourly series.
type DerivedWindows struct {
	Precip1h  float64 `json:"precip_1h"`  // mm
	Precip3h  float64 `json:"precip_3h"`  // mm
	Precip24h float64 `json:"precip_24h"` // mm

	PrecipChance1h float64 `json:"precip_chance_1h"` // percent, max over window
	PrecipChance3h float64 `json:"precip_chance_3h"` // percent, max over window
}

// WeatherSnapshot is an immutable forecast record. Snapshots are built fresh
// on every successful fetch and replaced atomically, never patched in place.
type WeatherSnapshot struct {
	Current   ConditionSet   `json:"current"`
	Hourly    []ConditionSet `json:"hourly"`
	NextHour  ConditionSet   `json:"next_hour"`
	Windows   DerivedWindows `json:"windows"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// ForecastProvider retrieves a normalized snapshot for a coordinate pair.
// Transport failures and non-2xx responses return a *WeatherFetchError.
type ForecastProvider interface {
	Forecast(ctx context.Context, at Coordinates) (WeatherSnapshot, error)
}

// NewSnapshot assembles a snapshot from a sanitized current reading and a
// chronological hourly series. Every condition set passes through
// Sanitize, so out-of-range upstream values never survive into a snapshot.
func NewSnapshot(current ConditionSet, hourly []ConditionSet, now time.Time) WeatherSnapshot {
	current = Sanitize(current)
	clean := make([]ConditionSet, len(hourly))
	for i, h := range hourly {
		clean[i] = Sanitize(h)
	}

	aligned := clean[alignIndex(clean, now):]

	next := current
	if len(aligned) > 0 {
		next = aligned[0]
	}

	return WeatherSnapshot{
		Current: current,
		Hourly:  clean,
		NextHour: next,
		Windows: DerivedWindows{
			Precip1h:       sumPrecipitation(aligned, 1),
			Precip3h:       sumPrecipitation(aligned, 3),
			Precip24h:      sumPrecipitation(aligned, 24),
			PrecipChance1h: maxChancePercent(aligned, 1),
			PrecipChance3h: maxChancePercent(aligned, 3),
		},
		FetchedAt: now,
	}
}

// alignIndex finds the first hourly slot that counts as "now": the first
// timestamp at or after now minus the skew tolerance. Returns len(hourly)
// when the whole series is in the past.
func alignIndex(hourly []ConditionSet, now time.Time) int {
	cutoff := now.Add(-hourlySkewTolerance)
	for i, h := range hourly {
		if !h.Time.Before(cutoff) {
			return i
		}
	}
	return len(hourly)
}

func sumPrecipitation(hourly []ConditionSet, n int) float64 {
	if n > len(hourly) {
		n = len(hourly)
	}
	var total float64
	for _, h := range hourly[:n] {
		total += h.Precipitation
	}
	return total
}

// maxChancePercent is deliberately a max, not an average: one 95% hour in
// an otherwise dry window still means "bring an umbrella".
func maxChancePercent(hourly []ConditionSet, n int) float64 {
	if n > len(hourly) {
		n = len(hourly)
	}
	var peak float64
	for _, h := range hourly[:n] {
		if h.PrecipProbability > peak {
			peak = h.PrecipProbability
		}
	}
	return peak * 100
}

// Sanitize clamps and defaults every field of a condition set. Upstream may
// send out-of-range or non-finite values; none of them survive this pass.
func Sanitize(c ConditionSet) ConditionSet {
	c.WindSpeed = finiteOrZero(c.WindSpeed)
	c.WindGust = finiteOrZero(c.WindGust)
	c.WindDirection = normalizeDegrees(c.WindDirection)
	c.Temperature = finiteOrZero(c.Temperature)
	c.ApparentTemperature = finiteOrZero(c.ApparentTemperature)
	c.Humidity = ClampPercent(c.Humidity)
	c.UVIndex = math.Max(finiteOrZero(c.UVIndex), 0)
	c.CloudCover = ClampPercent(c.CloudCover)
	c.Precipitation = math.Max(finiteOrZero(c.Precipitation), 0)
	c.PrecipProbability = ClampProbability(c.PrecipProbability)
	return c
}

// ClampPercent coerces a percentage to [0,100]; non-finite values become 0.
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampProbability coerces a fraction to [0,1]; non-finite values become 0.
func ClampProbability(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func normalizeDegrees(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}
