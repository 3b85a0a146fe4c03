package openmeteo

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
)

// cacheSlotKey is the persistence-store key for the single cache slot.
const cacheSlotKey = "weather_cache"

// CachedProvider wraps a ForecastProvider with the freshness cache: one
// slot, overwritten on every successful fetch, hit when the requested
// coordinates sit within maxDrift degrees of the cached ones and the entry
// is younger than maxAge. It short-circuits redundant fetches on rapid
// re-renders; it is not a general-purpose cache.
type CachedProvider struct {
	inner    domain.ForecastProvider
	store    domain.Store
	clock    clockwork.Clock
	maxAge   time.Duration
	maxDrift float64
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	slot   *cacheEntry
	loaded bool
}

type cacheEntry struct {
	Coords    domain.Coordinates     `json:"coords"`
	FetchedAt int64                  `json:"fetched_at_ms"` // epoch milliseconds
	Snapshot  domain.WeatherSnapshot `json:"snapshot"`
}

// NewCachedProvider creates the cache decorator around a forecast provider.
// The slot is persisted through the store so a restart keeps its last-known-
// good snapshot.
func NewCachedProvider(inner domain.ForecastProvider, store domain.Store, clock clockwork.Clock, maxAge time.Duration, maxDrift float64, metrics *observability.Metrics, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:    inner,
		store:    store,
		clock:    clock,
		maxAge:   maxAge,
		maxDrift: maxDrift,
		metrics:  metrics,
		logger:   logger,
	}
}

func (c *CachedProvider) Forecast(ctx context.Context, at domain.Coordinates) (domain.WeatherSnapshot, error) {
	if snap, ok := c.lookup(at); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return snap, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	snap, err := c.inner.Forecast(ctx, at)
	if err != nil {
		return domain.WeatherSnapshot{}, err
	}

	c.put(at, snap)
	return snap, nil
}

func (c *CachedProvider) lookup(at domain.Coordinates) (domain.WeatherSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.slot = c.loadSlot()
		c.loaded = true
	}
	if c.slot == nil {
		return domain.WeatherSnapshot{}, false
	}

	age := c.clock.Now().Sub(time.UnixMilli(c.slot.FetchedAt))
	if age < 0 || age >= c.maxAge {
		return domain.WeatherSnapshot{}, false
	}
	if !c.slot.Coords.Near(at, c.maxDrift) {
		return domain.WeatherSnapshot{}, false
	}
	return c.slot.Snapshot, true
}

func (c *CachedProvider) put(at domain.Coordinates, snap domain.WeatherSnapshot) {
	entry := &cacheEntry{
		Coords:    at,
		FetchedAt: c.clock.Now().UnixMilli(),
		Snapshot:  snap,
	}

	c.mu.Lock()
	c.slot = entry
	c.loaded = true
	c.mu.Unlock()

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("encode weather cache slot failed", "error", err)
		return
	}
	if err := c.store.Set(cacheSlotKey, string(raw)); err != nil {
		c.logger.Warn("persist weather cache slot failed", "error", err)
	}
}

func (c *CachedProvider) loadSlot() *cacheEntry {
	raw, ok := c.store.Get(cacheSlotKey)
	if !ok {
		return nil
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("persisted weather cache slot corrupt, ignoring", "error", err)
		return nil
	}
	return &entry
}
