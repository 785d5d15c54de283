package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"agritrace/internal/core"
	"agritrace/pkg/domain"
)

type errorResponse struct {
	Error      string                     `json:"error"`
	Violations []domain.ValidationFailure `json:"violations,omitempty"`
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}
	var blocked domain.RuleViolationError
	var notFound domain.ErrNotFound
	var duplicate domain.ErrDuplicate
	var malformed requestError
	switch {
	case errors.As(err, &blocked):
		resp.Violations = blocked.Result.Violations
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &malformed), errors.Is(err, core.ErrEmptyTraceCode):
		return http.StatusBadRequest, resp
	case errors.As(err, &notFound):
		return http.StatusNotFound, resp
	case errors.As(err, &duplicate), errors.Is(err, core.ErrTraceCodeConflict):
		return http.StatusConflict, resp
	case errors.Is(err, core.ErrNoBlobStore):
		return http.StatusServiceUnavailable, resp
	}
	if vf, ok := domain.AsValidationFailure(err); ok {
		resp.Violations = []domain.ValidationFailure{*vf}
		return http.StatusUnprocessableEntity, resp
	}
	return http.StatusInternalServerError, resp
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, resp := statusFor(err)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
