package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// conditions pipeline.
type Metrics struct {
	LocationRequests *prometheus.CounterVec // labels: outcome={granted,denied,error}
	CourseLookups    *prometheus.CounterVec // labels: outcome={found,none,error}
	CourseSearches   *prometheus.CounterVec // labels: outcome={ok,error}
	WeatherFetches   *prometheus.CounterVec // labels: outcome={success,error}
	WeatherCache     *prometheus.CounterVec // labels: result={hit,miss}
	StaleDropped     *prometheus.CounterVec // labels: pipeline={course,weather}

	UpstreamDuration *prometheus.HistogramVec // labels: upstream={overpass,openmeteo,geoip}

	RefreshRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.LocationRequests,
		m.CourseLookups,
		m.CourseSearches,
		m.WeatherFetches,
		m.WeatherCache,
		m.StaleDropped,
		m.UpstreamDuration,
		m.RefreshRunning,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LocationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairway",
			Name:      "location_requests_total",
			Help:      "Position requests by outcome.",
		}, []string{"outcome"}),
		CourseLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairway",
			Name:      "course_lookups_total",
			Help:      "Nearest-course resolutions by outcome.",
		}, []string{"outcome"}),
		CourseSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairway",
			Name:      "course_searches_total",
			Help:      "Name searches by outcome.",
		}, []string{"outcome"}),
		WeatherFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairway",
			Name:      "weather_fetches_total",
			Help:      "Forecast fetches by outcome, cache hits excluded.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairway",
			Name:      "weather_cache_total",
			Help:      "Freshness-cache lookups by result.",
		}, []string{"result"}),
		StaleDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairway",
			Name:      "stale_responses_dropped_total",
			Help:      "Responses discarded because a newer request superseded them.",
		}, []string{"pipeline"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fairway",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"upstream"}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fairway",
			Name:      "refresh_scheduler_running",
			Help:      "1 when the periodic refresh scheduler is active, 0 otherwise.",
		}),
	}
}
