// Package domain models golf-course weather conditions and the contracts
// the acquisition pipeline depends on.
//
// # Data Sources
//
// Course records come from the Overpass API (OpenStreetMap point-of-interest
// queries for leisure=golf_course). Overpass returns three geometry kinds:
//
//	node     - a point with direct lat/lon
//	way      - a line or closed polygon; usable only via its computed center
//	relation - a geometry group; usable only via its computed center
//
// Hits carrying neither direct coordinates nor a center are unusable and are
// discarded rather than defaulted to (0,0). A hit with no name tag is kept
// under the fallback label "Unnamed course": proximity decides which course
// wins, not name completeness.
//
// Weather comes from the Open-Meteo forecast API as a current reading plus
// parallel hourly arrays. Open-Meteo is best-effort and occasionally emits
// out-of-range percentages, so every percentage-bearing field is clamped
// before it enters a snapshot.
//
// # Field Conventions
//
// Wind speeds are meters per second, temperatures Celsius, precipitation
// millimeters, wind direction degrees in [0,360). Humidity and cloud cover
// are whole percents in [0,100]. Per-hour precipitation probability is a
// fraction in [0,1]; the derived chance windows are whole percents, since
// they are headline numbers.
//
// # Derived Windows
//
// The hourly series is aligned so that the first slot whose timestamp is at
// or after now minus 30 minutes counts as "now"; this tolerates timezone and
// rounding skew at the provider. Precipitation amounts over 1h/3h/24h are
// sums over the aligned slots. Precipitation chances over 1h/3h are the
// maximum hourly probability in the window, not the average: a single
// high-probability hour raises the headline number. The next-hour projection
// reads the first aligned slot and falls back to the current reading when
// the series is exhausted.
//
// # Distance
//
// All great-circle math goes through [DistanceKm] (haversine, Earth radius
// 6371 km). A single shared implementation avoids the classic bug of two
// haversines disagreeing on the radius constant.
package domain
