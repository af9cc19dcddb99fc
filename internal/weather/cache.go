// Package weather owns the cached view of upstream weather. The cache is the
// only component that talks to the provider client; everything else consumes
// observations through the types.WeatherSource interface.
package weather

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cropsense/internal/types"
)

// Fetcher retrieves a fresh observation from the upstream provider.
// Implemented by external.OpenWeatherClient.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (types.WeatherObservation, error)
}

// Metrics records cache lookup outcomes. Implemented by core.PrometheusCollector;
// a nil Metrics disables recording.
type Metrics interface {
	RecordCacheOutcome(outcome string)
}

// cacheEntry holds one cached observation and its expiry deadline. Entries are
// immutable; a refresh stores a new entry rather than mutating the old one.
type cacheEntry struct {
	obs       types.WeatherObservation
	expiresAt time.Time
}

// Cache is a TTL cache over the weather provider with two behaviors beyond a
// plain read-through cache:
//
//   - Concurrent misses for the same location are collapsed into a single
//     provider fetch (singleflight). Hits on a live entry never wait on an
//     in-flight fetch.
//   - When a refresh fails and an expired entry exists, the expired entry is
//     served with IsStale set rather than failing the caller. Only when no
//     entry has ever been stored does Get return weather_unavailable.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	clock   types.Clock
	logger  *slog.Logger
	metrics Metrics

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCache creates a weather cache. A nil clock falls back to the real UTC
// clock; a nil logger falls back to slog.Default.
func NewCache(fetcher Fetcher, ttl time.Duration, clock types.Clock, logger *slog.Logger, metrics Metrics) *Cache {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]cacheEntry),
	}
}

// Get implements types.WeatherSource. Lookups are keyed by the normalized
// location (case-insensitive, trimmed) so "Delhi" and " delhi " share one
// entry and one provider fetch.
func (c *Cache) Get(ctx context.Context, location string) (types.WeatherObservation, error) {
	key := normalizeKey(location)
	if key == "" {
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeValidationEmptyLocation,
			"location must not be empty",
			nil,
		)
	}

	now := c.clock.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Before(entry.expiresAt) {
		c.record("hit")
		return entry.obs, nil
	}

	// Miss or expired: collapse concurrent refreshes into one provider call.
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another waiter may have refreshed the entry while this call was
		// queued; re-check before hitting the provider.
		c.mu.RLock()
		refreshed, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.clock.Now().Before(refreshed.expiresAt) {
			return refreshed.obs, nil
		}

		obs, fetchErr := c.fetcher.Fetch(ctx, location)
		if fetchErr != nil {
			return nil, fetchErr
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{
			obs:       obs,
			expiresAt: c.clock.Now().Add(c.ttl),
		}
		c.mu.Unlock()

		return obs, nil
	})

	if err == nil {
		c.record("miss")
		return result.(types.WeatherObservation), nil
	}

	// Refresh failed. Serve the expired entry if one exists.
	if ok {
		c.record("stale")
		c.logger.Warn("serving stale weather observation",
			slog.String("location", key),
			slog.Time("fetched_at", entry.obs.FetchedAt),
			slog.String("error", err.Error()),
		)
		stale := entry.obs
		stale.IsStale = true
		return stale, nil
	}

	c.record("unavailable")
	return types.WeatherObservation{}, types.NewAppErrorWithDetails(
		types.ErrCodeWeatherUnavailable,
		"no weather observation available for location",
		err,
		map[string]any{"location": location},
	)
}

// DefaultObservation returns the neutral weather assumption used when no
// observation can be obtained at all: mild, moderately humid, no rain. The
// IsDefault flag tells consumers the advisory was computed without real
// weather data.
func DefaultObservation(location string, now time.Time) types.WeatherObservation {
	return types.WeatherObservation{
		Location:        location,
		TemperatureC:    25,
		HumidityPercent: 60,
		Condition:       types.ConditionClear,
		RainExpected:    false,
		FetchedAt:       now,
		IsDefault:       true,
	}
}

// Invalidate drops the cached entry for a location, forcing the next Get to
// hit the provider.
func (c *Cache) Invalidate(location string) {
	key := normalizeKey(location)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordCacheOutcome(outcome)
	}
}

func normalizeKey(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
