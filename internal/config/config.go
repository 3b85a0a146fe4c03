package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream endpoints. Overridable mostly for tests and mirrors.
	OverpassURL     string
	OverpassTimeout time.Duration
	ForecastURL     string
	ForecastTimeout time.Duration
	GeoIPURL        string
	GeoIPTimeout    time.Duration

	// Fixed device position. When set, the geolocation capability is a
	// constant source and no IP lookup is performed.
	FixedPosition *domain.Coordinates

	// Location request bounds.
	LocationTimeout time.Duration
	LocationMaxAge  time.Duration
	HighAccuracy    bool

	// Freshness cache tuning.
	CacheMaxAge   time.Duration
	CacheMaxDrift float64 // degrees

	// Periodic refresh; 0 disables the scheduler.
	RefreshInterval time.Duration

	// StatePath is the JSON file backing the persistence store.
	StatePath string

	DefaultUnits domain.Units
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file is honored when present.
func Load() (*Config, error) {
	// Best-effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	overpassTimeout, err := envDuration("OVERPASS_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	forecastTimeout, err := envDuration("FORECAST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	geoipTimeout, err := envDuration("GEOIP_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	locationTimeout, err := envDuration("LOCATION_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, err
	}
	locationMaxAge, err := envDuration("LOCATION_MAX_AGE", 45*time.Second)
	if err != nil {
		return nil, err
	}
	cacheMaxAge, err := envDuration("WEATHER_CACHE_MAX_AGE", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := envRefreshInterval()
	if err != nil {
		return nil, err
	}
	cacheMaxDrift, err := envFloat("WEATHER_CACHE_MAX_DRIFT_DEG", 0.01)
	if err != nil {
		return nil, err
	}
	if cacheMaxDrift <= 0 {
		return nil, errors.New("WEATHER_CACHE_MAX_DRIFT_DEG must be positive")
	}

	fixed, err := loadFixedPosition()
	if err != nil {
		return nil, err
	}

	units := domain.Units(envOrDefault("DEFAULT_UNITS", string(domain.UnitsImperial)))
	if !units.Valid() {
		return nil, fmt.Errorf("invalid DEFAULT_UNITS %q", units)
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		OverpassURL:     envOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout: overpassTimeout,
		ForecastURL:     envOrDefault("FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		ForecastTimeout: forecastTimeout,
		GeoIPURL:        envOrDefault("GEOIP_URL", "http://ip-api.com"),
		GeoIPTimeout:    geoipTimeout,

		FixedPosition: fixed,

		LocationTimeout: locationTimeout,
		LocationMaxAge:  locationMaxAge,
		HighAccuracy:    envOrDefault("LOCATION_HIGH_ACCURACY", "true") == "true",

		CacheMaxAge:   cacheMaxAge,
		CacheMaxDrift: cacheMaxDrift,

		RefreshInterval: refreshInterval,

		StatePath: envOrDefault("STATE_PATH", "fairway-state.json"),

		DefaultUnits: units,
	}

	if cfg.LocationTimeout <= 0 {
		return nil, errors.New("LOCATION_TIMEOUT must be positive")
	}

	return cfg, nil
}

// loadFixedPosition reads FIXED_LAT/FIXED_LON; both must be set together.
func loadFixedPosition() (*domain.Coordinates, error) {
	latStr, lonStr := os.Getenv("FIXED_LAT"), os.Getenv("FIXED_LON")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, errors.New("FIXED_LAT and FIXED_LON must be set together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FIXED_LAT: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FIXED_LON: %w", err)
	}

	coords := domain.Coordinates{Lat: lat, Lon: lon}
	if !coords.Valid() {
		return nil, fmt.Errorf("fixed position (%v, %v) out of range", lat, lon)
	}
	return &coords, nil
}

// envRefreshInterval allows 0 as an explicit "disabled" value.
func envRefreshInterval() (time.Duration, error) {
	s := envOrDefault("REFRESH_INTERVAL", "10m")
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New("invalid REFRESH_INTERVAL")
	}
	return d, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}
