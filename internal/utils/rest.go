package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RespondWithError sends an error envelope
func RespondWithError(w http.ResponseWriter, code int, kind, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: kind, Message: message})
}

// RespondWithErrorResponse sends a fully populated error envelope
func RespondWithErrorResponse(w http.ResponseWriter, code int, resp ErrorResponse) {
	RespondWithJSON(w, code, resp)
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"InternalServerError","message":"An internal error occurred"}`, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(append(body, '\n'))
	return err
}
