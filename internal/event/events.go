// Package event defines the typed events a form publishes on its bus.
//
// Every Event carries exactly one Payload; the payload's concrete type is
// determined by Event.Kind.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matthewbaird/eventform/internal/types"
)

// Kind enumerates the event kinds.
type Kind string

const (
	KindFieldChanged           Kind = "field_changed"
	KindFieldVisibilityChanged Kind = "field_visibility_changed"
	KindFieldDisabledChanged   Kind = "field_disabled_changed"
	KindFieldTouched           Kind = "field_touched"
	KindFieldErrorChanged      Kind = "field_error_changed"
	KindValidationStateChanged Kind = "validation_state_changed"
	KindStateReset             Kind = "state_reset"
	KindOptionsChanged         Kind = "options_changed"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{
	KindFieldChanged,
	KindFieldVisibilityChanged,
	KindFieldDisabledChanged,
	KindFieldTouched,
	KindFieldErrorChanged,
	KindValidationStateChanged,
	KindStateReset,
	KindOptionsChanged,
}

// Payload is implemented by every event payload type.
type Payload interface {
	Kind() Kind
	// FieldKey returns the field the payload is about, or "" for form-wide events.
	FieldKey() string
	Summary() string
}

// Event is the envelope published on the bus.
type Event struct {
	ID         string    `json:"id"`
	FormID     string    `json:"form_id"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Payload   `json:"payload"`
}

// New wraps p in an Event for formID.
func New(formID string, p Payload) Event {
	return Event{
		ID:         uuid.New().String(),
		FormID:     formID,
		Kind:       p.Kind(),
		OccurredAt: time.Now(),
		Payload:    p,
	}
}

// FieldKey returns the field the event is about.
func (e Event) FieldKey() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.FieldKey()
}

// ── Field events ─────────────────────────────────────────────────────────────

// FieldChanged is published when a field's value differs from its previous value.
type FieldChanged struct {
	Key  string `json:"key"`
	Prev string `json:"prev"`
	Next string `json:"next"`
}

func (FieldChanged) Kind() Kind         { return KindFieldChanged }
func (p FieldChanged) FieldKey() string { return p.Key }
func (p FieldChanged) Summary() string {
	return fmt.Sprintf("%s changed from %q to %q", p.Key, p.Prev, p.Next)
}

// FieldVisibilityChanged is published when a field is shown or hidden.
type FieldVisibilityChanged struct {
	Key     string `json:"key"`
	Visible bool   `json:"visible"`
}

func (FieldVisibilityChanged) Kind() Kind         { return KindFieldVisibilityChanged }
func (p FieldVisibilityChanged) FieldKey() string { return p.Key }
func (p FieldVisibilityChanged) Summary() string {
	if p.Visible {
		return p.Key + " shown"
	}
	return p.Key + " hidden"
}

// FieldDisabledChanged is published when a field is enabled or disabled.
type FieldDisabledChanged struct {
	Key      string `json:"key"`
	Disabled bool   `json:"disabled"`
}

func (FieldDisabledChanged) Kind() Kind         { return KindFieldDisabledChanged }
func (p FieldDisabledChanged) FieldKey() string { return p.Key }
func (p FieldDisabledChanged) Summary() string {
	if p.Disabled {
		return p.Key + " disabled"
	}
	return p.Key + " enabled"
}

// FieldTouched is published the first time a field is touched.
type FieldTouched struct {
	Key string `json:"key"`
}

func (FieldTouched) Kind() Kind         { return KindFieldTouched }
func (p FieldTouched) FieldKey() string { return p.Key }
func (p FieldTouched) Summary() string  { return p.Key + " touched" }

// FieldErrorChanged is published when a field's error message is set,
// replaced or cleared. An empty Error means the field is valid again.
type FieldErrorChanged struct {
	Key   string `json:"key"`
	Error string `json:"error,omitempty"`
}

func (FieldErrorChanged) Kind() Kind         { return KindFieldErrorChanged }
func (p FieldErrorChanged) FieldKey() string { return p.Key }
func (p FieldErrorChanged) Summary() string {
	if p.Error == "" {
		return p.Key + " error cleared"
	}
	return fmt.Sprintf("%s error: %s", p.Key, p.Error)
}

// OptionsChanged is published by the cascade resolver when a select's option
// list is replaced. An empty Options slice means the selector was cleared.
type OptionsChanged struct {
	Key     string         `json:"key"`
	Options []types.Option `json:"options"`
}

func (OptionsChanged) Kind() Kind         { return KindOptionsChanged }
func (p OptionsChanged) FieldKey() string { return p.Key }
func (p OptionsChanged) Summary() string {
	return fmt.Sprintf("%s options replaced (%d)", p.Key, len(p.Options))
}

// ── Form events ──────────────────────────────────────────────────────────────

// ValidationStateChanged is published only when the form flips between
// "no errors" and "has errors".
type ValidationStateChanged struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (ValidationStateChanged) Kind() Kind       { return KindValidationStateChanged }
func (ValidationStateChanged) FieldKey() string { return "" }
func (p ValidationStateChanged) Summary() string {
	if p.Valid {
		return "form became valid"
	}
	return fmt.Sprintf("form became invalid (%d errors)", len(p.Errors))
}

// StateReset is published after the store restores its defaults.
type StateReset struct{}

func (StateReset) Kind() Kind       { return KindStateReset }
func (StateReset) FieldKey() string { return "" }
func (StateReset) Summary() string  { return "form reset" }
