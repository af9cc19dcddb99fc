package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cropsense/internal/core"
	"cropsense/internal/types"
)

// WeatherHandler exposes the cached weather view for diagnostics and client
// display. It reads through the same cache the advisory composer uses, so
// responses reflect exactly what advisories are computed against.
type WeatherHandler struct {
	source types.WeatherSource
	logger *slog.Logger
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(source types.WeatherSource, logger *slog.Logger) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherHandler{source: source, logger: logger}
}

// RegisterRoutes mounts the weather endpoints onto the router group.
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather", h.HandleGet)
}

// HandleGet handles GET /v1/weather?location=X. Unlike the advisory path,
// this endpoint does not substitute default weather: if nothing is available
// the caller gets the weather_unavailable error.
func (h *WeatherHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptyLocation,
			"location query parameter is required",
			nil,
		))
		return
	}

	obs, err := h.source.Get(r.Context(), location)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: obs,
		Meta: weatherMeta(obs),
	})
}
