package utils

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		kind    string
		message string
	}{
		{name: "bad request", code: http.StatusBadRequest, kind: "MalformedJSON", message: "Request body is not valid JSON"},
		{name: "unauthorized", code: http.StatusUnauthorized, kind: "Unauthorized", message: "Missing API key"},
		{name: "not found", code: http.StatusNotFound, kind: "NotFound", message: "Request not found"},
		{name: "rate limited", code: http.StatusTooManyRequests, kind: "RateLimited", message: "Rate limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, tt.kind, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", ct)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Error != tt.kind {
				t.Errorf("RespondWithError() error = %s, want %s", response.Error, tt.kind)
			}
			if response.Message != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Message, tt.message)
			}
		})
	}
}

func TestRespondWithErrorResponse_Details(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithErrorResponse(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:     "ValidationError",
		Message:   "NumberofFloors: must be greater than 0",
		RequestID: "abc",
		Details:   map[string]any{"field": "NumberofFloors", "constraint": "exclusive_minimum"},
	})

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	details, ok := body["details"].(map[string]any)
	if !ok {
		t.Fatalf("details missing from %v", body)
	}
	if details["field"] != "NumberofFloors" {
		t.Errorf("details.field = %v, want NumberofFloors", details["field"])
	}
	if body["request_id"] != "abc" {
		t.Errorf("request_id = %v, want abc", body["request_id"])
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("map payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := RespondWithJSON(w, http.StatusCreated, map[string]any{"success": true, "count": 42})
		if err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if w.Code != http.StatusCreated {
			t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusCreated)
		}

		var response map[string]any
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if int(response["count"].(float64)) != 42 {
			t.Errorf("RespondWithJSON() count = %v, want 42", response["count"])
		}
	})

	t.Run("unencodable payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := RespondWithJSON(w, http.StatusOK, map[string]float64{"value": math.NaN()})
		if err == nil {
			t.Error("RespondWithJSON() expected error for NaN")
		}
		if w.Code != http.StatusInternalServerError {
			t.Errorf("RespondWithJSON() status = %d, want 500", w.Code)
		}
	})
}
