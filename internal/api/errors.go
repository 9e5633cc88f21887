package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/icecube"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeTooLarge        = "too_large"
	ErrCodeUnsupportedType = "unsupported_format"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeText writes a plain-text artifact.
func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(body))
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps catalogue, document and icecube errors onto HTTP
// responses. Anything unrecognised is logged and reported as a 500 with
// the given fallback message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var tooLarge *http.MaxBytesError
	switch {
	case icecube.IsValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, catalogue.ErrNotFound):
		writeNotFound(w, "icecube not found")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
	case errors.Is(err, document.ErrDecode):
		writeBadRequest(w, err.Error())
	case errors.Is(err, document.ErrUnknownFormat):
		writeError(w, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
