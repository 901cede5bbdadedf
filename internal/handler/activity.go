package handler

import (
	"net/http"
	"strings"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/session"
	"github.com/matthewbaird/eventform/internal/signals"
)

// ActivityHandler serves the activity journal of form sessions.
type ActivityHandler struct {
	store    activity.Store
	sessions *session.Manager
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store, sessions *session.Manager) *ActivityHandler {
	return &ActivityHandler{store: store, sessions: sessions}
}

// GetFormActivity returns a form's journal, newest first.
// GET /v1/forms/{id}/activity
func (h *ActivityHandler) GetFormActivity(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	opts.Since = parseTime(r, "since")
	opts.Until = parseTime(r, "until")
	if kinds := q.Get("kinds"); kinds != "" {
		opts.Kinds = strings.Split(kinds, ",")
	}
	opts.FieldKey = q.Get("field")
	opts.Text = q.Get("q")
	opts.Limit = parseLimit(r, opts.Limit, 500)
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, total, err := h.store.QueryByForm(r.Context(), s.ID, opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}

	writeJSON(w, r, http.StatusOK, struct {
		Activities []activity.Entry `json:"activities"`
		NextCursor string           `json:"next_cursor,omitempty"`
		TotalCount int              `json:"total_count"`
	}{entries, nextCursor, total})
}

// GetFormSummary returns the friction summary of a form's whole journal.
// GET /v1/forms/{id}/activity/summary
func (h *ActivityHandler) GetFormSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	opts := activity.DefaultQueryOptions()
	opts.Limit = 500
	var all []activity.Entry
	for {
		entries, next, _, err := h.store.QueryByForm(r.Context(), s.ID, opts)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
			return
		}
		all = append(all, entries...)
		if next == "" {
			break
		}
		opts.Cursor = next
	}

	writeJSON(w, r, http.StatusOK, signals.Aggregate(s.ID, all, signals.DefaultRules))
}
