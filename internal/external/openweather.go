package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cropsense/internal/config"
	"cropsense/internal/types"
)

// openWeatherUserAgent identifies this service to the weather provider.
const openWeatherUserAgent = "cropsense/1.0"

// OpenWeatherClient fetches current weather observations from the OpenWeather
// API. It is the only component that understands the provider's wire format;
// everything downstream works with types.WeatherObservation.
type OpenWeatherClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	clock   types.Clock
}

// NewOpenWeatherClient creates a provider client from weather configuration.
// A nil clock falls back to the real UTC clock.
func NewOpenWeatherClient(cfg config.WeatherConfig, clock types.Clock, opts ...BaseClientOption) *OpenWeatherClient {
	if clock == nil {
		clock = types.RealClock{}
	}

	httpClient := &http.Client{Timeout: cfg.FetchTimeout}

	return &OpenWeatherClient{
		base:    NewBaseClient(httpClient, "openweather", DefaultRetryPolicy(), openWeatherUserAgent, opts...),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		clock:   clock,
	}
}

// currentWeatherResponse mirrors the subset of the OpenWeather /weather
// payload this service consumes.
type currentWeatherResponse struct {
	Weather []struct {
		ID   int    `json:"id"`
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Name string `json:"name"`
}

// Fetch retrieves the current weather for a location by city name.
// Temperature is requested in metric units (Celsius).
//
// Error mapping:
//   - 404 from the provider becomes not_found_location.
//   - 401/403 (bad credentials) becomes upstream_weather_unavailable.
//   - 429/5xx/network failures are mapped by BaseClient.
func (c *OpenWeatherClient) Fetch(ctx context.Context, location string) (types.WeatherObservation, error) {
	if location == "" {
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeValidationEmptyLocation,
			"location must not be empty",
			nil,
		)
	}

	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric",
		c.baseURL,
		url.QueryEscape(location),
		url.QueryEscape(c.apiKey.Unmask()),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build weather request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return types.WeatherObservation{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.WeatherObservation{}, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundLocation,
			"location not recognized by weather provider",
			nil,
			map[string]any{"location": location},
		)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			"weather provider rejected credentials",
			nil,
		)
	case resp.StatusCode != http.StatusOK:
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather provider returned unexpected status %d", resp.StatusCode),
			nil,
		)
	}

	var payload currentWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			"failed to decode weather provider response",
			err,
		)
	}

	return c.toObservation(location, payload)
}

// toObservation translates the provider payload into the domain observation,
// simplifying the provider's condition taxonomy into the three conditions the
// feature builder understands.
func (c *OpenWeatherClient) toObservation(location string, payload currentWeatherResponse) (types.WeatherObservation, error) {
	if len(payload.Weather) == 0 {
		return types.WeatherObservation{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			"weather provider response missing condition data",
			nil,
		)
	}

	obs := types.WeatherObservation{
		Location:        location,
		TemperatureC:    payload.Main.Temp,
		HumidityPercent: payload.Main.Humidity,
		Condition:       simplifyCondition(payload.Weather[0].ID),
		FetchedAt:       c.clock.Now(),
	}
	obs.RainExpected = obs.Condition == types.ConditionRain

	if err := obs.Validate(); err != nil {
		return types.WeatherObservation{}, err
	}

	return obs, nil
}

// simplifyCondition collapses OpenWeather condition codes into the domain's
// three-way taxonomy. Code groups per the provider's documentation:
//
//	2xx thunderstorm, 3xx drizzle, 5xx rain -> Rain
//	800 clear sky                           -> Clear
//	everything else (clouds, mist, snow)    -> Clouds
func simplifyCondition(code int) types.WeatherCondition {
	switch {
	case code >= 200 && code < 400, code >= 500 && code < 600:
		return types.ConditionRain
	case code == 800:
		return types.ConditionClear
	default:
		return types.ConditionClouds
	}
}

// probeTimeout bounds the provider reachability check used by the health endpoint.
const probeTimeout = 2 * time.Second

// Name implements core.HealthProbe.
func (c *OpenWeatherClient) Name() string { return "weather_provider" }

// Check implements core.HealthProbe by fetching a well-known location. A
// not-found response still proves the provider is reachable and credentials
// are valid enough to get a routed answer, so only transport-level failures
// are reported as unhealthy.
func (c *OpenWeatherClient) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := c.Fetch(ctx, "London")
	var appErr *types.AppError
	if err != nil && errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundLocation {
		return nil
	}
	return err
}
