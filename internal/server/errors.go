package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/pdfmerge/internal/api"
	"example.com/pdfmerge/internal/fetch"
	"example.com/pdfmerge/internal/merge"
)

// statusFor maps an error to the HTTP status reported to the client.
// Unresolved references are 404, anything the client can fix by changing
// the request is 400, problems with a remote document are 502.
func statusFor(err error) int {
	var (
		mbe *http.MaxBytesError
		se  *fetch.StatusError
	)
	switch {
	case errors.As(err, &mbe), errors.Is(err, fetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, merge.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, merge.ErrInvalidPageNumber),
		errors.Is(err, merge.ErrMalformedDocument),
		errors.Is(err, merge.ErrEmptyPlan),
		errors.Is(err, api.ErrInvalidSpecification),
		errors.Is(err, fetch.ErrBadURL),
		errors.Is(err, fetch.ErrForbidden),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &se),
		errors.Is(err, fetch.ErrNoPDFLink),
		errors.Is(err, fetch.ErrTooManyHops):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
