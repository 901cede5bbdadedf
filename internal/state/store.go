// Package state holds the field state of one form instance and notifies
// subscribers of every change.
//
// The Store is the only writer of field state. Mutations happen under a
// mutex; the resulting events are published after the lock is released, so
// subscribers may call back into the Store from their handlers.
package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/event"
	"github.com/matthewbaird/eventform/internal/types"
	"github.com/matthewbaird/eventform/internal/validation"
)

// Publisher delivers events. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event)
}

// FieldValidator validates a single value. *validation.Engine satisfies it.
type FieldValidator interface {
	ValidateField(key, value string) validation.Result
}

// FieldSpec declares a field and its construction defaults.
type FieldSpec struct {
	Key      string
	Default  string
	Visible  bool
	Disabled bool
}

// Config configures a Store.
type Config struct {
	FormID    string
	Fields    []FieldSpec
	Validator FieldValidator
	Bus       Publisher
	Logger    zerolog.Logger

	AuthorizationKey      string
	AuthorizationAccepted string
	System                types.SystemState
}

// Store is the single source of truth for a form's fields.
type Store struct {
	mu     sync.Mutex
	order  []string
	fields map[string]*types.FieldState
	system types.SystemState
	valid  bool

	formID       string
	specs        []FieldSpec
	initial      types.SystemState
	validator    FieldValidator
	bus          Publisher
	logger       zerolog.Logger
	authKey      string
	authAccepted string
}

// New creates a store with the fields of cfg at their defaults. The field
// set is fixed for the life of the store; duplicate keys keep the first spec.
func New(cfg Config) *Store {
	s := &Store{
		fields:       make(map[string]*types.FieldState, len(cfg.Fields)),
		formID:       cfg.FormID,
		initial:      cfg.System,
		validator:    cfg.Validator,
		bus:          cfg.Bus,
		logger:       cfg.Logger.With().Str("component", "state").Logger(),
		authKey:      cfg.AuthorizationKey,
		authAccepted: cfg.AuthorizationAccepted,
	}
	for _, spec := range cfg.Fields {
		if _, dup := s.fields[spec.Key]; dup || spec.Key == "" {
			continue
		}
		s.specs = append(s.specs, spec)
		s.order = append(s.order, spec.Key)
		s.fields[spec.Key] = &types.FieldState{}
	}
	s.restore()
	return s
}

// restore puts every field back to its spec. Callers hold mu or own s.
func (s *Store) restore() {
	for _, spec := range s.specs {
		*s.fields[spec.Key] = types.FieldState{
			Key:      spec.Key,
			Value:    spec.Default,
			Visible:  spec.Visible,
			Disabled: spec.Disabled,
		}
	}
	s.system = s.initial
	s.system.IsSubmitting = false
	s.valid = true
}

func (s *Store) emit(ctx context.Context, payloads []event.Payload) {
	if s.bus == nil {
		return
	}
	for _, p := range payloads {
		s.bus.Publish(ctx, event.New(s.formID, p))
	}
}

func (s *Store) unknown(op, key string) {
	s.logger.Warn().Str("op", op).Str("field", key).Msg("unknown field")
}

// UpdateField sets the value of key. It returns false when the key is
// unknown. A FieldChanged event is published only when the value differs; a
// touched field is re-validated either way.
func (s *Store) UpdateField(ctx context.Context, key, value string) bool {
	s.mu.Lock()
	f, ok := s.fields[key]
	if !ok {
		s.mu.Unlock()
		s.unknown("update", key)
		return false
	}
	var payloads []event.Payload
	if f.Value != value {
		payloads = append(payloads, event.FieldChanged{Key: key, Prev: f.Value, Next: value})
		f.Value = value
	}
	touched := f.Touched
	s.mu.Unlock()

	if len(payloads) > 0 {
		s.logger.Debug().Str("field", key).Str("value", value).Msg("field updated")
	}
	s.emit(ctx, payloads)
	if touched {
		s.Revalidate(ctx, key)
	}
	return true
}

// SetFieldVisibility shows or hides key. Hiding a field clears its error.
func (s *Store) SetFieldVisibility(ctx context.Context, key string, visible bool) bool {
	s.mu.Lock()
	f, ok := s.fields[key]
	if !ok {
		s.mu.Unlock()
		s.unknown("visibility", key)
		return false
	}
	var payloads []event.Payload
	if f.Visible != visible {
		f.Visible = visible
		payloads = append(payloads, event.FieldVisibilityChanged{Key: key, Visible: visible})
		if !visible && f.Error != "" {
			f.Error = ""
			payloads = append(payloads, event.FieldErrorChanged{Key: key})
			payloads = s.flipLocked(payloads)
		}
	}
	s.mu.Unlock()

	s.emit(ctx, payloads)
	return true
}

// SetFieldDisabled enables or disables key.
func (s *Store) SetFieldDisabled(ctx context.Context, key string, disabled bool) bool {
	s.mu.Lock()
	f, ok := s.fields[key]
	if !ok {
		s.mu.Unlock()
		s.unknown("disabled", key)
		return false
	}
	var payloads []event.Payload
	if f.Disabled != disabled {
		f.Disabled = disabled
		payloads = append(payloads, event.FieldDisabledChanged{Key: key, Disabled: disabled})
	}
	s.mu.Unlock()

	s.emit(ctx, payloads)
	return true
}

// MarkFieldAsTouched flags key as touched and validates it. FieldTouched is
// published on the first transition only.
func (s *Store) MarkFieldAsTouched(ctx context.Context, key string) bool {
	s.mu.Lock()
	f, ok := s.fields[key]
	if !ok {
		s.mu.Unlock()
		s.unknown("touch", key)
		return false
	}
	var payloads []event.Payload
	if !f.Touched {
		f.Touched = true
		payloads = append(payloads, event.FieldTouched{Key: key})
	}
	s.mu.Unlock()

	s.emit(ctx, payloads)
	s.Revalidate(ctx, key)
	return true
}

// Revalidate runs the validator on the current value of key and records the
// outcome. It does nothing without a validator.
func (s *Store) Revalidate(ctx context.Context, key string) {
	if s.validator == nil {
		return
	}
	value, ok := s.Value(key)
	if !ok {
		return
	}
	if r := s.validator.ValidateField(key, value); r.Valid {
		s.ClearValidationError(ctx, key)
	} else {
		s.SetValidationError(ctx, key, r.Error)
	}
}

// SetValidationError records msg as the error of key. Errors on hidden
// fields are ignored and false is returned.
func (s *Store) SetValidationError(ctx context.Context, key, msg string) bool {
	if msg == "" {
		return s.ClearValidationError(ctx, key)
	}
	s.mu.Lock()
	f, ok := s.fields[key]
	if !ok {
		s.mu.Unlock()
		s.unknown("set_error", key)
		return false
	}
	if !f.Visible {
		s.mu.Unlock()
		s.logger.Debug().Str("field", key).Msg("error on hidden field ignored")
		return false
	}
	var payloads []event.Payload
	if f.Error != msg {
		f.Error = msg
		payloads = append(payloads, event.FieldErrorChanged{Key: key, Error: msg})
		payloads = s.flipLocked(payloads)
	}
	s.mu.Unlock()

	s.emit(ctx, payloads)
	return true
}

// ClearValidationError removes the error of key.
func (s *Store) ClearValidationError(ctx context.Context, key string) bool {
	s.mu.Lock()
	f, ok := s.fields[key]
	if !ok {
		s.mu.Unlock()
		s.unknown("clear_error", key)
		return false
	}
	var payloads []event.Payload
	if f.Error != "" {
		f.Error = ""
		payloads = append(payloads, event.FieldErrorChanged{Key: key})
		payloads = s.flipLocked(payloads)
	}
	s.mu.Unlock()

	s.emit(ctx, payloads)
	return true
}

// flipLocked appends ValidationStateChanged when overall validity flipped.
func (s *Store) flipLocked(payloads []event.Payload) []event.Payload {
	errs := s.errorsLocked()
	valid := len(errs) == 0
	if valid == s.valid {
		return payloads
	}
	s.valid = valid
	return append(payloads, event.ValidationStateChanged{Valid: valid, Errors: errs})
}

func (s *Store) errorsLocked() map[string]string {
	errs := make(map[string]string)
	for _, key := range s.order {
		if f := s.fields[key]; f.Error != "" {
			errs[key] = f.Error
		}
	}
	return errs
}

// Reset restores every field and the system flags to their construction
// values and publishes StateReset. A form that had errors first publishes
// ValidationStateChanged, since a restored form has none.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	wasValid := s.valid
	s.restore()
	s.mu.Unlock()

	var payloads []event.Payload
	if !wasValid {
		payloads = append(payloads, event.ValidationStateChanged{Valid: true, Errors: map[string]string{}})
	}
	s.logger.Debug().Msg("state reset")
	s.emit(ctx, append(payloads, event.StateReset{}))
}

// IsReadyToSubmit reports whether the form has no errors, is not already
// submitting, and has accepted the authorization (or runs in dev mode).
func (s *Store) IsReadyToSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.system.IsSubmitting || len(s.errorsLocked()) > 0 {
		return false
	}
	if s.authKey == "" || s.system.DevMode {
		return true
	}
	f, ok := s.fields[s.authKey]
	return ok && f.Value == s.authAccepted
}

// SetSubmitting flags the form as submitting.
func (s *Store) SetSubmitting(submitting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system.IsSubmitting = submitting
}

// System returns the system flags.
func (s *Store) System() types.SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.system
}

// Field returns a copy of the state of key.
func (s *Store) Field(key string) (types.FieldState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[key]
	if !ok {
		return types.FieldState{}, false
	}
	return *f, true
}

// Value returns the value of key.
func (s *Store) Value(key string) (string, bool) {
	f, ok := s.Field(key)
	return f.Value, ok
}

// Has reports whether key is a field of the store.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fields[key]
	return ok
}

// Keys returns the field keys in construction order.
func (s *Store) Keys() []string {
	return append([]string(nil), s.order...)
}

// Errors returns the current field errors.
func (s *Store) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorsLocked()
}

// Snapshot returns a copy of every field in construction order.
func (s *Store) Snapshot() types.FormSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := types.FormSnapshot{
		Fields: make([]types.FieldState, len(s.order)),
		System: s.system,
	}
	for i, key := range s.order {
		snap.Fields[i] = *s.fields[key]
	}
	return snap
}

// FormID returns the id events are published under.
func (s *Store) FormID() string {
	return s.formID
}
