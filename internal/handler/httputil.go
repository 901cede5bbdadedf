// Package handler implements the HTTP API over form sessions, their
// activity journals and the shared dataset catalog.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/matthewbaird/eventform/internal/form"
	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/session"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("writeJSON encode error")
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// lookupSession resolves the {id} path parameter to a live session.
func lookupSession(w http.ResponseWriter, r *http.Request, sessions *session.Manager) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s := sessions.Get(r.Context(), id)
	if s == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "form session not found: "+id)
		return nil, false
	}
	return s, true
}

// parseTime reads an RFC 3339 query parameter; absent or malformed values
// are ignored.
func parseTime(r *http.Request, name string) *time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// parseLimit reads the limit query parameter, capped at max.
func parseLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// errorToHTTP maps form and dataset errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	var notReady *form.NotReadyError
	switch {
	case errors.As(err, &notReady):
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"code":   "VALIDATION_FAILED",
			"result": notReady.Result,
		})
	case errors.Is(err, form.ErrNotReady):
		writeError(w, r, http.StatusConflict, "NOT_READY", err.Error())
	case errors.Is(err, form.ErrUnknownField):
		writeError(w, r, http.StatusUnprocessableEntity, "UNKNOWN_FIELD", err.Error())
	case errors.Is(err, form.ErrFieldDisabled):
		writeError(w, r, http.StatusConflict, "FIELD_DISABLED", err.Error())
	case loader.IsExhausted(err):
		writeError(w, r, http.StatusBadGateway, "DATA_SOURCE_UNAVAILABLE", err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("internal error")
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
