package weather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cropsense/internal/types"
)

// stubFetcher is a controllable Fetcher for cache tests.
type stubFetcher struct {
	mu    sync.Mutex
	calls atomic.Int32
	obs   types.WeatherObservation
	err   error
	delay time.Duration
}

func (f *stubFetcher) Fetch(ctx context.Context, location string) (types.WeatherObservation, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.WeatherObservation{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.WeatherObservation{}, f.err
	}
	obs := f.obs
	obs.Location = location
	return obs, nil
}

func (f *stubFetcher) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// mutableClock is a manually advanced clock.
type mutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testObservation() types.WeatherObservation {
	return types.WeatherObservation{
		TemperatureC:    28,
		HumidityPercent: 70,
		Condition:       types.ConditionClear,
		FetchedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestCache(fetcher Fetcher, clock types.Clock) *Cache {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewCache(fetcher, 10*time.Minute, clock, logger, nil)
}

func TestGet_FetchesOnMissAndCaches(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	obs, err := cache.Get(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Location != "Delhi" {
		t.Errorf("expected Delhi, got %q", obs.Location)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.calls.Load())
	}

	// Second call within TTL must be served from cache.
	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("expected cache hit, got %d fetches", fetcher.calls.Load())
	}
}

func TestGet_KeysAreCaseInsensitive(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Get(context.Background(), "  delhi "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("expected normalized keys to share one entry, got %d fetches", fetcher.calls.Load())
	}
}

func TestGet_RefreshesAfterTTL(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(11 * time.Minute)

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("expected refresh after TTL, got %d fetches", fetcher.calls.Load())
	}
}

func TestGet_ConcurrentMissesCollapseToOneFetch(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation(), delay: 50 * time.Millisecond}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background(), "Delhi")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: unexpected error: %v", i, err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("expected concurrent misses to collapse to 1 fetch, got %d", got)
	}
}

func TestGet_ServesStaleOnRefreshFailure(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(11 * time.Minute)
	fetcher.setError(errors.New("provider timeout"))

	obs, err := cache.Get(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !obs.IsStale {
		t.Error("expected IsStale on fallback observation")
	}
	if obs.TemperatureC != 28 {
		t.Errorf("expected original observation data, got %v", obs.TemperatureC)
	}
}

func TestGet_StaleFlagDoesNotPoisonCache(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(11 * time.Minute)
	fetcher.setError(errors.New("provider timeout"))
	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Provider recovers: next Get must fetch fresh data without the stale flag.
	fetcher.setError(nil)
	obs, err := cache.Get(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.IsStale {
		t.Error("recovered observation must not carry IsStale")
	}
}

func TestGet_UnavailableWhenNoEntryExists(t *testing.T) {
	fetcher := &stubFetcher{}
	fetcher.setError(errors.New("provider timeout"))
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	_, err := cache.Get(context.Background(), "Atlantis")
	if err == nil {
		t.Fatal("expected error when no cached entry exists")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeWeatherUnavailable {
		t.Errorf("expected weather_unavailable, got %s", appErr.Code)
	}
}

func TestGet_EmptyLocation(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	_, err := cache.Get(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for blank location")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationEmptyLocation {
		t.Errorf("expected validation_empty_location, got %s", appErr.Code)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	fetcher := &stubFetcher{obs: testObservation()}
	clock := &mutableClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.Invalidate("Delhi")

	if _, err := cache.Get(context.Background(), "Delhi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("expected refetch after invalidation, got %d fetches", fetcher.calls.Load())
	}
}

func TestDefaultObservation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	obs := DefaultObservation("Atlantis", now)

	if !obs.IsDefault {
		t.Error("expected IsDefault flag")
	}
	if obs.IsStale {
		t.Error("default observation must not be stale")
	}
	if obs.Condition != types.ConditionClear {
		t.Errorf("expected Clear condition, got %s", obs.Condition)
	}
	if obs.RainExpected {
		t.Error("default observation must not expect rain")
	}
	if err := obs.Validate(); err != nil {
		t.Errorf("default observation must be valid: %v", err)
	}
}
