package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/eventform/internal/form"
	"github.com/matthewbaird/eventform/internal/session"
	"github.com/matthewbaird/eventform/internal/types"
)

// FormHandler implements HTTP handlers for form sessions.
type FormHandler struct {
	sessions *session.Manager
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(sessions *session.Manager) *FormHandler {
	return &FormHandler{sessions: sessions}
}

type createFormResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	View      form.View `json:"view"`
}

// CreateForm starts a new form session.
// POST /v1/forms
func (h *FormHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, createFormResponse{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		View:      s.Form.View(),
	})
}

// GetForm returns the renderable state of a form.
// GET /v1/forms/{id}
func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.Form.View())
}

// UpdateField sets a field value and returns the resulting view, since one
// change may cascade into many fields.
// PUT /v1/forms/{id}/fields/{key}
func (h *FormHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if err := s.Form.Update(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.Form.View())
}

// TouchField marks a field as touched and returns its state.
// POST /v1/forms/{id}/fields/{key}/touch
func (h *FormHandler) TouchField(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.Form.Touch(r.Context(), key); err != nil {
		errorToHTTP(w, r, err)
		return
	}
	fs, _ := s.Form.Snapshot().Field(key)
	writeJSON(w, r, http.StatusOK, fs)
}

// GetOptions returns the current options of a select.
// GET /v1/forms/{id}/fields/{key}/options
func (h *FormHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	opts, err := s.Form.Options(key)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if opts == nil {
		opts = []types.Option{}
	}
	writeJSON(w, r, http.StatusOK, struct {
		Key     string         `json:"key"`
		Options []types.Option `json:"options"`
	}{key, opts})
}

// ValidateForm validates every field and returns the result.
// POST /v1/forms/{id}/validate
func (h *FormHandler) ValidateForm(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.Form.Validate(r.Context()))
}

// SubmitForm validates the form and returns the values to submit.
// POST /v1/forms/{id}/submit
func (h *FormHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	values, err := s.Form.Submission(r.Context())
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"values": values})
}

// ResetForm restores the form to its started state.
// POST /v1/forms/{id}/reset
func (h *FormHandler) ResetForm(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	if err := s.Form.Reset(r.Context()); err != nil {
		// Degraded selects do not fail the reset.
		writeJSON(w, r, http.StatusOK, map[string]any{"view": s.Form.View(), "warning": err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"view": s.Form.View()})
}

// DeleteForm ends a form session.
// DELETE /v1/forms/{id}
func (h *FormHandler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.Remove(r.Context(), id) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "form session not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
