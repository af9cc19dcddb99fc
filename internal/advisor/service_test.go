package advisor

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
	"cropsense/internal/weather"
)

// stubWeatherSource returns a fixed observation or error.
type stubWeatherSource struct {
	obs types.WeatherObservation
	err error
}

func (s *stubWeatherSource) Get(_ context.Context, location string) (types.WeatherObservation, error) {
	if s.err != nil {
		return types.WeatherObservation{}, s.err
	}
	obs := s.obs
	obs.Location = location
	return obs, nil
}

type stubClock struct{ t time.Time }

func (c stubClock) Now() time.Time { return c.t }

func delhiWeather() types.WeatherObservation {
	return types.WeatherObservation{
		TemperatureC:    28,
		HumidityPercent: 60,
		Condition:       types.ConditionClear,
		RainExpected:    false,
		FetchedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestService(t *testing.T, source types.WeatherSource) *Service {
	t.Helper()
	return NewService(
		source,
		mustModel(t),
		NewRuleEngine(DefaultRules()),
		stubClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		nil,
	)
}

func TestAdvise_ModelRecommendation(t *testing.T) {
	svc := newTestService(t, &stubWeatherSource{obs: delhiWeather()})

	reading := types.SensorReading{Nitrogen: 45, Phosphorus: 18, Potassium: 65, LeafColor: 3}
	advisory, err := svc.Advise(context.Background(), reading, "Delhi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if advisory.OverrideApplied {
		t.Error("expected no override for healthy leaf color")
	}
	if advisory.OverrideRule != "" {
		t.Errorf("expected empty override rule, got %q", advisory.OverrideRule)
	}
	if advisory.Label == "" {
		t.Error("expected a model label")
	}
	if advisory.Confidence <= 0 || advisory.Confidence >= 1 {
		t.Errorf("expected confidence strictly between 0 and 1, got %v", advisory.Confidence)
	}
	if advisory.ModelVersion != "test-1.0.0" {
		t.Errorf("expected model version on advisory, got %q", advisory.ModelVersion)
	}
	if advisory.Weather.Location != "Delhi" {
		t.Errorf("expected weather snapshot for Delhi, got %q", advisory.Weather.Location)
	}
	if advisory.GeneratedAt.IsZero() {
		t.Error("expected GeneratedAt to be set")
	}
}

func TestAdvise_Deterministic(t *testing.T) {
	svc := newTestService(t, &stubWeatherSource{obs: delhiWeather()})
	reading := types.SensorReading{Nitrogen: 45, Phosphorus: 18, Potassium: 65, LeafColor: 3}

	first, err := svc.Advise(context.Background(), reading, "Delhi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := svc.Advise(context.Background(), reading, "Delhi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Label != first.Label || again.Confidence != first.Confidence {
			t.Fatalf("advisory changed between identical calls: %+v vs %+v", first, again)
		}
	}
}

func TestAdvise_SevereDeficiencyOverride(t *testing.T) {
	svc := newTestService(t, &stubWeatherSource{obs: delhiWeather()})

	reading := types.SensorReading{Nitrogen: 10, Phosphorus: 5, Potassium: 3, LeafColor: 0}
	advisory, err := svc.Advise(context.Background(), reading, "Delhi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !advisory.OverrideApplied {
		t.Fatal("expected override for severe deficiency leaf color")
	}
	if advisory.Label != LabelHighNitrogen {
		t.Errorf("expected %s, got %s", LabelHighNitrogen, advisory.Label)
	}
	if advisory.Confidence != 1.0 {
		t.Errorf("expected confidence exactly 1.0, got %v", advisory.Confidence)
	}
	if advisory.OverrideRule != "leaf_severe_deficiency" {
		t.Errorf("expected rule name recorded, got %q", advisory.OverrideRule)
	}
}

func TestAdvise_OverrideIgnoresWeather(t *testing.T) {
	reading := types.SensorReading{Nitrogen: 10, Phosphorus: 5, Potassium: 3, LeafColor: 0}

	observations := []types.WeatherObservation{
		{Condition: types.ConditionRain, TemperatureC: 35, HumidityPercent: 95},
		{Condition: types.ConditionClear, TemperatureC: 5, HumidityPercent: 10},
		{Condition: types.ConditionClouds, TemperatureC: 22, HumidityPercent: 55},
	}

	for _, obs := range observations {
		svc := newTestService(t, &stubWeatherSource{obs: obs})
		advisory, err := svc.Advise(context.Background(), reading, "Delhi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if advisory.Label != LabelHighNitrogen || advisory.Confidence != 1.0 {
			t.Errorf("override must be weather-independent, got %s/%v under %s",
				advisory.Label, advisory.Confidence, obs.Condition)
		}
	}
}

func TestAdvise_DefaultWeatherWhenUnavailable(t *testing.T) {
	source := &stubWeatherSource{
		err: types.NewAppError(types.ErrCodeWeatherUnavailable, "no observation available", nil),
	}
	svc := newTestService(t, source)

	reading := types.SensorReading{Nitrogen: 45, Phosphorus: 18, Potassium: 65, LeafColor: 3}
	advisory, err := svc.Advise(context.Background(), reading, "Atlantis")
	if err != nil {
		t.Fatalf("expected degraded advisory, got error: %v", err)
	}

	if !advisory.Weather.IsDefault {
		t.Error("expected IsDefault flag on substituted weather")
	}
	if advisory.Weather.Location != "Atlantis" {
		t.Errorf("expected default weather keyed to location, got %q", advisory.Weather.Location)
	}
	if advisory.Label == "" {
		t.Error("expected an advisory label despite missing weather")
	}
}

func TestAdvise_OtherWeatherErrorsPropagate(t *testing.T) {
	source := &stubWeatherSource{
		err: types.NewAppError(types.ErrCodeNotFoundLocation, "location not recognized", nil),
	}
	svc := newTestService(t, source)

	reading := types.SensorReading{Nitrogen: 45, Phosphorus: 18, Potassium: 65, LeafColor: 3}
	_, err := svc.Advise(context.Background(), reading, "Nowheresville")
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeNotFoundLocation {
		t.Errorf("expected not_found_location, got %s", appErr.Code)
	}
}

func TestAdvise_InvalidReadingRejectedBeforeWeatherFetch(t *testing.T) {
	source := &countingFetcherSource{}
	svc := newTestService(t, source)

	reading := types.SensorReading{Nitrogen: -5, LeafColor: 2}
	_, err := svc.Advise(context.Background(), reading, "Delhi")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if source.calls.Load() != 0 {
		t.Error("weather must not be fetched for an invalid reading")
	}
}

type countingFetcherSource struct {
	calls atomic.Int32
}

func (s *countingFetcherSource) Get(_ context.Context, location string) (types.WeatherObservation, error) {
	s.calls.Add(1)
	return delhiWeather(), nil
}

// countingFetcher counts provider fetches through a real weather cache.
type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(_ context.Context, location string) (types.WeatherObservation, error) {
	f.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	obs := delhiWeather()
	obs.Location = location
	return obs, nil
}

func TestAdvise_ConcurrentCallsShareOneWeatherFetch(t *testing.T) {
	fetcher := &countingFetcher{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cache := weather.NewCache(fetcher, 10*time.Minute, nil, logger, nil)

	svc := NewService(cache, mustModel(t), NewRuleEngine(DefaultRules()), nil, logger, nil)
	reading := types.SensorReading{Nitrogen: 45, Phosphorus: 18, Potassium: 65, LeafColor: 3}

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Advise(context.Background(), reading, "Jaipur")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: unexpected error: %v", i, err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("expected 1 provider fetch for concurrent advise calls, got %d", got)
	}
}

func TestAdvise_StaleWeatherStillProducesAdvisory(t *testing.T) {
	svc := newTestService(t, &stubWeatherSource{obs: func() types.WeatherObservation {
		obs := delhiWeather()
		obs.IsStale = true
		return obs
	}()})

	reading := types.SensorReading{Nitrogen: 45, Phosphorus: 18, Potassium: 65, LeafColor: 3}
	advisory, err := svc.Advise(context.Background(), reading, "Delhi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !advisory.Weather.IsStale {
		t.Error("expected stale flag carried onto advisory weather snapshot")
	}
}
