package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"importdesk/internal/core"
)

type errorResponse struct {
	Error      string            `json:"error"`
	Code       string            `json:"code"`
	RequestID  string            `json:"request_id,omitempty"`
	Violations map[string]string `json:"violations,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps engine error kinds onto HTTP statuses. Gate
// failures carry the full violation map so callers can render every problem
// at once.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var gateErr *core.StageGateError
	if errors.As(err, &gateErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(errorResponse{
			Error:      gateErr.Error(),
			Code:       "GATE_FAILED",
			RequestID:  requestIDFromContext(r.Context()),
			Violations: gateErr.Violations,
		})
		return
	}
	var validationErr *core.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, r, err.Error(), "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var notFoundErr *core.NotFoundError
	if errors.As(err, &notFoundErr) {
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
		return
	}
	var conflictErr *core.ConflictError
	if errors.As(err, &conflictErr) {
		writeError(w, r, err.Error(), "CONFLICT", http.StatusConflict)
		return
	}
	writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
