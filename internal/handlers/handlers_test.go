package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"timekill-backend/internal/models"
	"timekill-backend/internal/services"
)

// ─── Error mapping ───

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"text": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "Email already in use"}, http.StatusConflict, "CONFLICT"},
		{"not found", &services.NotFoundError{Message: "missing"}, http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", &services.UnauthorizedError{Message: "nope"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", &services.ForbiddenError{Message: "denied"}, http.StatusForbidden, "FORBIDDEN"},
		{"rate limited", &services.RateLimitError{Limit: 50}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"out of credits", &services.InsufficientCreditsError{Requested: 3, Remaining: 1}, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"},
		{"document too long", &services.DocumentTooLongError{Length: 9000, Max: 5000}, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LONG"},
		{"detector down", &services.DetectionError{Status: 503, Body: "down"}, http.StatusBadGateway, "DETECTION_UNAVAILABLE"},
		{"generation failed", &services.GenerationError{Reason: "no array"}, http.StatusBadGateway, "GENERATION_FAILED"},
		{"unknown", bytes.ErrTooLarge, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/humanize", nil)
			req.Header.Set("X-Request-ID", "req-123")

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.expectedCode {
				t.Errorf("Expected status %d, got %d", tc.expectedCode, rr.Code)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if resp.Error.Code != tc.expectedErr {
				t.Errorf("Expected error code %q, got %q", tc.expectedErr, resp.Error.Code)
			}
			if resp.Error.RequestID != "req-123" {
				t.Errorf("Expected request ID propagated, got %q", resp.Error.RequestID)
			}
		})
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/humanize", nil)

	handleServiceError(rr, req, &services.ValidationError{Fields: map[string]string{"text": "Text is required"}})

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if resp.Error.Fields["text"] != "Text is required" {
		t.Errorf("Expected field error preserved, got %v", resp.Error.Fields)
	}
}

// ─── JSON envelope ───

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusCreated, map[string]string{"message": "ok"})

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", rr.Header().Get("Content-Type"))
	}

	var result map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["message"] != "ok" {
		t.Errorf("Expected message 'ok', got %q", result["message"])
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		param    string
		fallback int
		expected int
	}{
		{"present", "/runs?limit=5", "limit", 20, 5},
		{"absent", "/runs", "limit", 20, 20},
		{"garbage", "/runs?limit=abc", "limit", 20, 20},
		{"negative", "/runs?offset=-3", "offset", 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if got := parseIntParam(req, tc.param, tc.fallback); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}
