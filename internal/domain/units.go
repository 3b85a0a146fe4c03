package domain

import (
	"fmt"
	"math"
)

// Units selects between imperial and metric presentation.
type Units string

const (
	UnitsImperial Units = "imperial"
	UnitsMetric   Units = "metric"
)

// Valid reports whether u is one of the two known unit systems.
func (u Units) Valid() bool {
	return u == UnitsImperial || u == UnitsMetric
}

// Toggle returns the other unit system.
func (u Units) Toggle() Units {
	if u == UnitsImperial {
		return UnitsMetric
	}
	return UnitsImperial
}

const mphPerMeterPerSecond = 2.23693629

func ToFahrenheit(c float64) float64 { return c*9/5 + 32 }
func ToCelsius(f float64) float64    { return (f - 32) * 5 / 9 }

func MetersPerSecondToMph(ms float64) float64 { return ms * mphPerMeterPerSecond }
func MphToMetersPerSecond(mph float64) float64 {
	return mph / mphPerMeterPerSecond
}

func MillimetersToInches(mm float64) float64 { return mm / 25.4 }

// missingValue renders in place of any absent numeric input. Formatters
// fail soft: they never panic on NaN or infinities.
const missingValue = "—"

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// FormatTemp renders a Celsius temperature in the given unit system,
// rounded to the nearest whole degree. NaN renders the placeholder.
func FormatTemp(celsius float64, u Units) string {
	if math.IsNaN(celsius) {
		return missingValue
	}
	if u == UnitsImperial {
		return fmt.Sprintf("%.0f°F", math.Round(ToFahrenheit(celsius)))
	}
	return fmt.Sprintf("%.0f°C", math.Round(celsius))
}

// FormatSpeed renders a m/s speed in the given unit system, rounded to the
// nearest whole unit.
func FormatSpeed(ms float64, u Units) string {
	if math.IsNaN(ms) {
		return missingValue
	}
	if u == UnitsImperial {
		return fmt.Sprintf("%.0f mph", math.Round(MetersPerSecondToMph(ms)))
	}
	return fmt.Sprintf("%.0f m/s", math.Round(ms))
}

// FormatPrecip renders a millimeter amount: one decimal below a whole unit,
// whole numbers above.
func FormatPrecip(mm float64, u Units) string {
	if math.IsNaN(mm) {
		return missingValue
	}
	v := mm
	suffix := "mm"
	if u == UnitsImperial {
		v = MillimetersToInches(mm)
		suffix = "in"
	}
	if v < 1 {
		return fmt.Sprintf("%.1f%s", math.Round(v*10)/10, suffix)
	}
	return fmt.Sprintf("%.0f%s", math.Round(v), suffix)
}

// FormatDirection maps degrees onto one of the 16 compass points and appends
// the rounded bearing, e.g. "NNE 23°". Stable under full rotations.
func FormatDirection(degrees float64) string {
	if math.IsNaN(degrees) {
		return missingValue
	}
	idx := int(math.Round(degrees/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return fmt.Sprintf("%s %.0f°", compassPoints[idx], math.Round(degrees))
}

// FormatPercent renders a 0-100 percentage rounded to the nearest whole.
func FormatPercent(v float64) string {
	if math.IsNaN(v) {
		return missingValue
	}
	return fmt.Sprintf("%.0f%%", math.Round(v))
}
