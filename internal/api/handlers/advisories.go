// Package handlers contains the HTTP handler implementations for the
// CropSense API:
//   - Advisory preview (POST /v1/advisories/preview)
//   - Advisory creation with persistence (POST /v1/advisories)
//   - Advisory history (GET /v1/advisories)
//   - Current weather lookup (GET /v1/weather)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cropsense/internal/core"
	"cropsense/internal/types"
)

// maxHistoryLimit caps the page size of the history endpoint.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AdvisoryServiceInterface is the composer contract the handler depends on.
// Defined locally to avoid tight coupling per the handler injection pattern.
type AdvisoryServiceInterface interface {
	Advise(ctx context.Context, reading types.SensorReading, location string) (types.Advisory, error)
}

// AdvisoryStore is the persistence contract for stored advisories.
type AdvisoryStore interface {
	Save(ctx context.Context, reading *types.ReadingRecord, advisory *types.AdvisoryRecord) error
	ListRecent(ctx context.Context, location string, limit int) ([]types.AdvisoryRecord, error)
}

// AdvisoryHandler maps HTTP requests to the advisory composer and store.
type AdvisoryHandler struct {
	service   AdvisoryServiceInterface
	store     AdvisoryStore
	validator *core.Validator
	logger    *slog.Logger
	clock     types.Clock
}

// NewAdvisoryHandler creates an AdvisoryHandler with the provided dependencies.
func NewAdvisoryHandler(
	svc AdvisoryServiceInterface,
	store AdvisoryStore,
	val *core.Validator,
	logger *slog.Logger,
	clock types.Clock,
) *AdvisoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &AdvisoryHandler{
		service:   svc,
		store:     store,
		validator: val,
		logger:    logger,
		clock:     clock,
	}
}

// RegisterRoutes mounts the advisory endpoints onto the router group.
func (h *AdvisoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/advisories", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Post("/preview", h.HandlePreview)
		r.Get("/", h.HandleList)
	})
}

// advisoryRequest is the request body shared by preview and create. Nutrient
// fields are pointers so a missing field is distinguishable from a legitimate
// zero measurement.
type advisoryRequest struct {
	Location   string   `json:"location" validate:"required"`
	Nitrogen   *float64 `json:"nitrogen" validate:"required"`
	Phosphorus *float64 `json:"phosphorus" validate:"required"`
	Potassium  *float64 `json:"potassium" validate:"required"`
	LeafColor  *int     `json:"leaf_color" validate:"required"`
}

func (req advisoryRequest) reading() types.SensorReading {
	return types.SensorReading{
		Nitrogen:   *req.Nitrogen,
		Phosphorus: *req.Phosphorus,
		Potassium:  *req.Potassium,
		LeafColor:  *req.LeafColor,
	}
}

// advisoryResponse is the response body for preview, create, and list items.
type advisoryResponse struct {
	ID              string                   `json:"id,omitempty"`
	Label           string                   `json:"label"`
	Confidence      float64                  `json:"confidence"`
	OverrideApplied bool                     `json:"override_applied"`
	OverrideRule    string                   `json:"override_rule,omitempty"`
	ModelVersion    string                   `json:"model_version"`
	Weather         types.WeatherObservation `json:"weather"`
	GeneratedAt     string                   `json:"generated_at"`
	Saved           bool                     `json:"saved"`
}

func toAdvisoryResponse(a types.Advisory, saved bool) advisoryResponse {
	return advisoryResponse{
		ID:              a.ID,
		Label:           a.Label,
		Confidence:      a.Confidence,
		OverrideApplied: a.OverrideApplied,
		OverrideRule:    a.OverrideRule,
		ModelVersion:    a.ModelVersion,
		Weather:         a.Weather,
		GeneratedAt:     a.GeneratedAt.Format(time.RFC3339),
		Saved:           saved,
	}
}

// decodeAdvisoryRequest parses and validates the shared request body.
func (h *AdvisoryHandler) decodeAdvisoryRequest(w http.ResponseWriter, r *http.Request) (advisoryRequest, bool) {
	var req advisoryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	if strings.TrimSpace(req.Location) == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptyLocation,
			"location must not be blank",
			nil,
		))
		return req, false
	}
	return req, true
}

// HandlePreview handles POST /v1/advisories/preview: compute an advisory
// without persisting anything.
func (h *AdvisoryHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdvisoryRequest(w, r)
	if !ok {
		return
	}

	advisory, err := h.service.Advise(r.Context(), req.reading(), req.Location)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: toAdvisoryResponse(advisory, false),
		Meta: weatherMeta(advisory.Weather),
	})
}

// HandleCreate handles POST /v1/advisories: compute an advisory and persist
// the reading and advisory together.
//
// Persistence failure is deliberately non-fatal: the advisory was already
// computed and is still useful to the caller, so the response degrades to
// saved=false with a warning instead of a 500.
func (h *AdvisoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAdvisoryRequest(w, r)
	if !ok {
		return
	}

	reading := req.reading()
	advisory, err := h.service.Advise(r.Context(), reading, req.Location)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	readingRec := &types.ReadingRecord{
		ID:       "read_" + uuid.New().String(),
		Location: req.Location,
		Reading:  reading,
	}
	advisory.ID = "adv_" + uuid.New().String()
	advisoryRec := &types.AdvisoryRecord{
		ID:       advisory.ID,
		Location: req.Location,
		Advisory: advisory,
	}

	saved := true
	if err := h.store.Save(r.Context(), readingRec, advisoryRec); err != nil {
		saved = false
		advisory.ID = ""
		h.logger.Error("failed to persist advisory",
			slog.String("location", req.Location),
			slog.String("error", err.Error()),
		)
	}

	meta := weatherMeta(advisory.Weather)
	if !saved {
		if meta == nil {
			meta = &core.ResponseMeta{}
		}
		meta.Warnings = append(meta.Warnings, "advisory could not be persisted")
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{
		Data: toAdvisoryResponse(advisory, saved),
		Meta: meta,
	})
}

// HandleList handles GET /v1/advisories?location=X&limit=N.
func (h *AdvisoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	location := strings.TrimSpace(q.Get("location"))
	if location == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptyLocation,
			"location query parameter is required",
			nil,
		))
		return
	}

	limit := defaultHistoryLimit
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationLimitRange,
				"limit must be an integer between 1 and 100",
				nil,
				map[string]any{"limit": limitStr},
			))
			return
		}
		limit = parsed
	}

	records, err := h.store.ListRecent(r.Context(), location, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	items := make([]advisoryResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toAdvisoryResponse(rec.Advisory, true))
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// weatherMeta surfaces degraded weather inputs as response warnings.
func weatherMeta(obs types.WeatherObservation) *core.ResponseMeta {
	switch {
	case obs.IsDefault:
		return &core.ResponseMeta{Warnings: []string{"weather data unavailable; advisory computed with default weather"}}
	case obs.IsStale:
		return &core.ResponseMeta{Warnings: []string{"weather data is stale; provider could not be refreshed"}}
	default:
		return nil
	}
}
