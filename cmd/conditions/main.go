// Command conditions is a one-shot check of the live data path: it resolves
// the nearest golf course to a coordinate, fetches the forecast for it, and
// prints a formatted summary. Useful for verifying upstream connectivity
// without running the full dashboard service.
//
// Usage:
//
//	go run ./cmd/conditions -lat 33.45 -lon -112.07
//	go run ./cmd/conditions -lat 33.45 -lon -112.07 -search "papago" -units metric
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fairway-conditions/internal/adapter/openmeteo"
	"github.com/couchcryptid/fairway-conditions/internal/adapter/overpass"
	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

func main() {
	var (
		lat         = flag.Float64("lat", 0, "latitude")
		lon         = flag.Float64("lon", 0, "longitude")
		search      = flag.String("search", "", "optional course name search instead of nearest-course resolution")
		units       = flag.String("units", string(domain.UnitsImperial), "display units: imperial or metric")
		overpassURL = flag.String("overpass-url", "https://overpass-api.de/api/interpreter", "Overpass API endpoint")
		forecastURL = flag.String("forecast-url", "https://api.open-meteo.com/v1/forecast", "Open-Meteo API endpoint")
		timeout     = flag.Duration("timeout", 15*time.Second, "per-upstream request timeout")
	)
	flag.Parse()

	coords := domain.Coordinates{Lat: *lat, Lon: *lon}
	if !coords.Valid() {
		fmt.Fprintln(os.Stderr, "valid -lat and -lon are required")
		os.Exit(2)
	}
	u := domain.Units(*units)
	if !u.Valid() {
		fmt.Fprintln(os.Stderr, "-units must be imperial or metric")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithTimeout(context.Background(), (*timeout)*2)
	defer cancel()

	finder := overpass.NewClient(*overpassURL, *timeout, metrics, logger)

	target := coords
	if *search != "" {
		courses, err := finder.SearchByName(ctx, *search, &coords)
		if err != nil {
			fatal(err)
		}
		if len(courses) == 0 {
			fmt.Printf("no course matching %q\n", *search)
			os.Exit(1)
		}
		printCourse(courses[0])
		target = courses[0].Coords
	} else {
		course, err := finder.NearestCourse(ctx, coords)
		if err != nil {
			fatal(err)
		}
		if course == nil {
			fmt.Println("no course within search radius; using raw coordinates")
		} else {
			printCourse(*course)
			target = course.Coords
		}
	}

	provider := openmeteo.NewClient(*forecastURL, *timeout, clock, metrics, logger)
	snap, err := provider.Forecast(ctx, target)
	if err != nil {
		fatal(err)
	}

	cur := snap.Current
	fmt.Printf("temperature  %s (feels like %s)\n",
		domain.FormatTemp(cur.Temperature, u), domain.FormatTemp(cur.ApparentTemperature, u))
	fmt.Printf("wind         %s gusting %s from %s\n",
		domain.FormatSpeed(cur.WindSpeed, u), domain.FormatSpeed(cur.WindGust, u),
		domain.FormatDirection(cur.WindDirection))
	fmt.Printf("humidity     %s   cloud cover %s   uv %.1f\n",
		domain.FormatPercent(cur.Humidity), domain.FormatPercent(cur.CloudCover), cur.UVIndex)
	fmt.Printf("precip       1h %s   3h %s   24h %s\n",
		domain.FormatPrecip(snap.Windows.Precip1h, u),
		domain.FormatPrecip(snap.Windows.Precip3h, u),
		domain.FormatPrecip(snap.Windows.Precip24h, u))
	fmt.Printf("precip odds  1h %s   3h %s\n",
		domain.FormatPercent(snap.Windows.PrecipChance1h),
		domain.FormatPercent(snap.Windows.PrecipChance3h))
}

func printCourse(course domain.Course) {
	if course.DistanceKm > 0 {
		fmt.Printf("course       %s (%.1f km, %s)\n", course.Name, course.DistanceKm, course.ID)
		return
	}
	fmt.Printf("course       %s (%s)\n", course.Name, course.ID)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
