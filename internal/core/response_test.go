package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cropsense/internal/types"
)

func TestJSON_WritesEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	JSON(rec, req, http.StatusOK, APIResponse{Data: map[string]string{"label": "urea"}})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data type %T", resp.Data)
	}
	if data["label"] != "urea" {
		t.Errorf("expected label urea, got %v", data["label"])
	}
}

func TestError_AppError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req_abc"))
	rec := httptest.NewRecorder()

	appErr := types.NewAppError(types.ErrCodeValidationLeafColor, "leaf_color must be between 0 and 5", nil)
	Error(rec, req, appErr)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeValidationLeafColor) {
		t.Errorf("expected code %s, got %s", types.ErrCodeValidationLeafColor, resp.Error.Code)
	}
	if resp.Error.RequestID != "req_abc" {
		t.Errorf("expected request_id req_abc, got %s", resp.Error.RequestID)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	inner := types.NewAppError(types.ErrCodeWeatherUnavailable, "no observation available", nil)
	Error(rec, req, &types.AppError{
		Code:    types.ErrCodeWeatherUnavailable,
		Message: inner.Message,
		Err:     inner,
	})

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	Error(rec, req, errSentinel("pg: connection refused to 10.0.3.7"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.3.7") {
		t.Error("internal error detail leaked to client")
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected internal_unexpected_error, got %s", resp.Error.Code)
	}
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Location string `json:"location"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"location":"Delhi"}`, wantErr: false},
		{name: "malformed", body: `{"location":`, wantErr: true},
		{name: "unknown field", body: `{"location":"Delhi","bogus":1}`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
		{name: "multiple values", body: `{"location":"Delhi"}{"location":"Pune"}`, wantErr: true},
		{name: "wrong type", body: `{"location":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(rec, req, &dst)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var appErr *types.AppError
				if !errors.As(err, &appErr) {
					t.Fatalf("expected AppError, got %T", err)
				}
				if appErr.Code != types.ErrCodeValidationInvalidJSON {
					t.Errorf("expected validation_invalid_json, got %s", appErr.Code)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
