package state

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/eventform/internal/event"
	"github.com/matthewbaird/eventform/internal/eventbus"
	"github.com/matthewbaird/eventform/internal/types"
	"github.com/matthewbaird/eventform/internal/validation"
)

type recorder struct {
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, evt event.Event) {
	r.events = append(r.events, evt)
}

func (r *recorder) kinds() []event.Kind {
	out := make([]event.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

func newStore(t *testing.T, pub Publisher) *Store {
	t.Helper()
	return New(Config{
		FormID: "form-1",
		Fields: []FieldSpec{
			{Key: "first_name", Visible: true},
			{Key: "document_number", Visible: true},
			{Key: "country", Default: "COL", Visible: true},
			{Key: "city"},
			{Key: "authorization", Visible: true},
		},
		Validator: validation.NewEngine(validation.Options{
			Chains:                validation.DefaultChains(),
			AuthorizationKey:      "authorization",
			AuthorizationAccepted: "1",
		}),
		Bus:                   pub,
		Logger:                zerolog.Nop(),
		AuthorizationKey:      "authorization",
		AuthorizationAccepted: "1",
	})
}

func TestStore_Defaults(t *testing.T) {
	s := newStore(t, nil)

	snap := s.Snapshot()
	require.Len(t, snap.Fields, 5)
	assert.Equal(t, []string{"first_name", "document_number", "country", "city", "authorization"}, s.Keys())
	assert.Equal(t, "COL", snap.Value("country"))
	city, _ := snap.Field("city")
	assert.False(t, city.Visible)
}

func TestStore_UpdateField(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()

	require.True(t, s.UpdateField(ctx, "first_name", "Ana"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, event.FieldChanged{Key: "first_name", Prev: "", Next: "Ana"}, rec.events[0].Payload)
	assert.Equal(t, "form-1", rec.events[0].FormID)

	rec.reset()
	require.True(t, s.UpdateField(ctx, "first_name", "Ana"))
	assert.Empty(t, rec.events, "unchanged value publishes nothing")

	assert.False(t, s.UpdateField(ctx, "nickname", "x"))
	_, ok := s.Field("nickname")
	assert.False(t, ok, "unknown keys are never added")
}

func TestStore_TouchedFieldsRevalidate(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()

	s.UpdateField(ctx, "document_number", "12")
	assert.Empty(t, s.Errors(), "untouched fields are not validated")

	s.MarkFieldAsTouched(ctx, "document_number")
	assert.Contains(t, s.Errors(), "document_number")

	s.UpdateField(ctx, "document_number", "1020304050")
	assert.Empty(t, s.Errors())
}

func TestStore_TouchPublishesOnce(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()
	s.UpdateField(ctx, "first_name", "Ana")
	rec.reset()

	s.MarkFieldAsTouched(ctx, "first_name")
	s.MarkFieldAsTouched(ctx, "first_name")
	assert.Equal(t, []event.Kind{event.KindFieldTouched}, rec.kinds())
}

func TestStore_ValidityFlipOnly(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()

	s.SetValidationError(ctx, "first_name", "required")
	s.SetValidationError(ctx, "document_number", "too short")
	s.ClearValidationError(ctx, "first_name")
	s.ClearValidationError(ctx, "document_number")

	var flips []bool
	for _, e := range rec.events {
		if p, ok := e.Payload.(event.ValidationStateChanged); ok {
			flips = append(flips, p.Valid)
		}
	}
	assert.Equal(t, []bool{false, true}, flips)
}

func TestStore_HiddenFieldsCarryNoErrors(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	assert.False(t, s.SetValidationError(ctx, "city", "required"))
	assert.Empty(t, s.Errors())

	s.SetValidationError(ctx, "first_name", "required")
	s.SetFieldVisibility(ctx, "first_name", false)
	f, _ := s.Field("first_name")
	assert.Empty(t, f.Error)
	assert.Empty(t, s.Errors())
}

func TestStore_VisibilityAndDisabledAreIdempotent(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()

	s.SetFieldVisibility(ctx, "city", true)
	s.SetFieldVisibility(ctx, "city", true)
	s.SetFieldDisabled(ctx, "city", true)
	s.SetFieldDisabled(ctx, "city", true)

	assert.Equal(t, []event.Kind{event.KindFieldVisibilityChanged, event.KindFieldDisabledChanged}, rec.kinds())
}

func TestStore_IsReadyToSubmit(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	assert.False(t, s.IsReadyToSubmit(), "authorization not accepted")

	s.UpdateField(ctx, "authorization", "1")
	assert.True(t, s.IsReadyToSubmit())

	s.SetValidationError(ctx, "first_name", "required")
	assert.False(t, s.IsReadyToSubmit())
	s.ClearValidationError(ctx, "first_name")

	s.SetSubmitting(true)
	assert.False(t, s.IsReadyToSubmit())
}

func TestStore_DevModeBypassesAuthorization(t *testing.T) {
	s := New(Config{
		Fields:                []FieldSpec{{Key: "authorization", Visible: true}},
		Logger:                zerolog.Nop(),
		AuthorizationKey:      "authorization",
		AuthorizationAccepted: "1",
		System:                types.SystemState{DevMode: true},
	})
	assert.True(t, s.IsReadyToSubmit())
}

func TestStore_Reset(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()

	s.UpdateField(ctx, "country", "MEX")
	s.MarkFieldAsTouched(ctx, "first_name")
	s.SetSubmitting(true)
	rec.reset()

	s.Reset(ctx)
	assert.Equal(t, []event.Kind{event.KindStateReset}, rec.kinds())
	snap := s.Snapshot()
	assert.Equal(t, "COL", snap.Value("country"))
	f, _ := snap.Field("first_name")
	assert.False(t, f.Touched)
	assert.Empty(t, f.Error)
	assert.False(t, snap.System.IsSubmitting)
}

func TestStore_ResetRestoresValidity(t *testing.T) {
	rec := &recorder{}
	s := newStore(t, rec)
	ctx := context.Background()

	s.SetValidationError(ctx, "first_name", "required")
	rec.reset()

	s.Reset(ctx)
	require.Equal(t, []event.Kind{event.KindValidationStateChanged, event.KindStateReset}, rec.kinds())
	p, ok := rec.events[0].Payload.(event.ValidationStateChanged)
	require.True(t, ok)
	assert.True(t, p.Valid)
	assert.Empty(t, p.Errors)

	// A second error after the reset flips validity again.
	rec.reset()
	s.SetValidationError(ctx, "first_name", "required")
	assert.Contains(t, rec.kinds(), event.KindValidationStateChanged)
}

func TestStore_HandlersMayReenter(t *testing.T) {
	bus := eventbus.New(zerolog.Nop())
	s := newStore(t, bus)
	ctx := context.Background()

	bus.OnField("mirror", "country", eventbus.HandlerFunc(func(ctx context.Context, evt event.Event) error {
		s.UpdateField(ctx, "city", "")
		s.SetFieldVisibility(ctx, "city", evt.Payload.(event.FieldChanged).Next == "COL")
		return nil
	}))

	s.UpdateField(ctx, "country", "MEX")
	f, _ := s.Field("city")
	assert.False(t, f.Visible)

	s.UpdateField(ctx, "country", "COL")
	f, _ = s.Field("city")
	assert.True(t, f.Visible)
}
