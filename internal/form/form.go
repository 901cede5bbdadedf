// Package form assembles one registration form instance: the field store,
// the validation engine, the cascade resolver and the event bus, wired
// together and populated from the shared dataset catalog.
package form

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/cascade"
	"github.com/matthewbaird/eventform/internal/config"
	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/eventbus"
	"github.com/matthewbaird/eventform/internal/logging"
	"github.com/matthewbaird/eventform/internal/signals"
	"github.com/matthewbaird/eventform/internal/state"
	"github.com/matthewbaird/eventform/internal/types"
	"github.com/matthewbaird/eventform/internal/validation"
)

var (
	// ErrUnknownField is returned for keys the form does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrFieldDisabled is returned when input targets a disabled field.
	ErrFieldDisabled = errors.New("field is disabled")
	// ErrNotReady is returned by Submission when the form cannot be submitted.
	ErrNotReady = errors.New("form is not ready to submit")
)

// NotReadyError carries the validation result that blocked a submission.
type NotReadyError struct {
	Result validation.FormResult
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%v: %d invalid fields", ErrNotReady, len(e.Result.Errors))
}

func (e *NotReadyError) Unwrap() error { return ErrNotReady }

// Deps are the process-wide services a form uses.
type Deps struct {
	Catalog *dataset.Catalog
	Journal activity.Store // optional
	Logger  zerolog.Logger
}

// Form is one registration form instance.
type Form struct {
	id        string
	cfg       config.FormConfig
	createdAt time.Time

	bus      *eventbus.Bus
	store    *state.Store
	engine   *validation.Engine
	resolver *cascade.Resolver
	journal  activity.Store
	roots    []cascade.Source
	logger   zerolog.Logger
}

// New builds a form. Start must be called before the form is used.
func New(id string, cfg config.FormConfig, deps Deps) (*Form, error) {
	if deps.Catalog == nil {
		return nil, errors.New("form: catalog is required")
	}
	engine, err := validator(cfg)
	if err != nil {
		return nil, fmt.Errorf("building validation rules: %w", err)
	}

	logger := logging.ForForm(deps.Logger, id, cfg.Modes.Debug)
	bus := eventbus.New(logger)

	f := &Form{
		id:        id,
		cfg:       cfg,
		createdAt: time.Now(),
		bus:       bus,
		engine:    engine,
		journal:   deps.Journal,
		logger:    logger.With().Str("component", "form").Logger(),
	}
	f.store = state.New(state.Config{
		FormID:                id,
		Fields:                fieldSpecs(cfg.AuthorizationField),
		Validator:             engine,
		Bus:                   bus,
		Logger:                logger,
		AuthorizationKey:      cfg.AuthorizationField,
		AuthorizationAccepted: cfg.AuthorizationAccepted,
		System: types.SystemState{
			DevMode:   cfg.Modes.Dev,
			TestMode:  cfg.Modes.Test,
			DebugMode: cfg.Modes.Debug,
		},
	})
	f.resolver = cascade.New(cascade.Config{
		FormID: id,
		Store:  f.store,
		Bus:    bus,
		Edges:  edges(cfg, deps.Catalog),
		Logger: logger,
	})
	f.roots = roots(cfg, deps.Catalog)

	// The journal sees every event before the cascade reacts to it, so its
	// order matches causation.
	if f.journal != nil {
		bus.Subscribe("activity", activity.NewRecorder(f.journal))
	}
	bus.Subscribe("cascade", f.resolver)
	bus.Subscribe("signals", signals.NewConsumer(logger, signals.WeightFriction))
	if cfg.Modes.Debug {
		bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	}
	return f, nil
}

// Start populates the root selects, selects the default country and, in
// test mode, fills in the configured test data. Dataset failures degrade
// the affected selects and are returned joined; the form stays usable.
func (f *Form) Start(ctx context.Context) error {
	var errs []error
	for _, src := range f.roots {
		if err := f.resolver.Populate(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("populating %s: %w", src.Key, err))
		}
	}

	if c := f.cfg.DefaultCountry; c != "" {
		f.store.UpdateField(ctx, Country, c)
	}

	if f.cfg.Modes.Test {
		for _, key := range f.store.Keys() {
			if v, ok := f.cfg.TestData[key]; ok {
				f.store.UpdateField(ctx, key, v)
			}
		}
	}

	f.logger.Debug().Int("errors", len(errs)).Msg("form started")
	return errors.Join(errs...)
}

// ID returns the form id.
func (f *Form) ID() string { return f.id }

// CreatedAt returns when the form was built.
func (f *Form) CreatedAt() time.Time { return f.createdAt }

// Bus returns the form's event bus, for renderers that follow its events.
func (f *Form) Bus() *eventbus.Bus { return f.bus }

// Update sets a field from user input.
func (f *Form) Update(ctx context.Context, key, value string) error {
	field, ok := f.store.Field(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if field.Disabled {
		return fmt.Errorf("%w: %s", ErrFieldDisabled, key)
	}
	if opts := f.resolver.Options(key); len(opts) > 0 && value != "" && !f.resolver.HasOption(key, value) {
		f.logger.Warn().Str("field", key).Str("value", value).Msg("value is not one of the current options")
	}
	f.store.UpdateField(ctx, key, value)
	return nil
}

// Touch marks a field as touched, which validates it.
func (f *Form) Touch(ctx context.Context, key string) error {
	if !f.store.MarkFieldAsTouched(ctx, key) {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	return nil
}

// Options returns the current options of a select.
func (f *Form) Options(key string) ([]types.Option, error) {
	if !f.store.Has(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	return f.resolver.Options(key), nil
}

// Validate touches every visible field so their errors surface, then
// validates the form as a whole.
func (f *Form) Validate(ctx context.Context) validation.FormResult {
	snap := f.store.Snapshot()
	for _, field := range snap.Fields {
		if field.Visible || field.Key == f.cfg.AuthorizationField {
			f.store.MarkFieldAsTouched(ctx, field.Key)
		}
	}
	return f.engine.ValidateForm(f.store.Snapshot())
}

// Submission validates the form and returns its non-empty values. On
// success the form is flagged as submitting until it is reset, so a second
// submission is refused.
func (f *Form) Submission(ctx context.Context) (map[string]string, error) {
	res := f.Validate(ctx)
	if !res.Valid {
		return nil, &NotReadyError{Result: res}
	}
	if !f.store.IsReadyToSubmit() {
		return nil, ErrNotReady
	}

	out := make(map[string]string)
	for _, field := range f.store.Snapshot().Fields {
		if field.Value != "" {
			out[field.Key] = field.Value
		}
	}
	f.store.SetSubmitting(true)
	f.logger.Info().Int("fields", len(out)).Msg("form submitted")
	return out, nil
}

// Reset restores the form to its freshly started state.
func (f *Form) Reset(ctx context.Context) error {
	f.resolver.Reset(ctx)
	f.store.Reset(ctx)
	return f.Start(ctx)
}

// Close drops the form's journal.
func (f *Form) Close(ctx context.Context) error {
	if f.journal == nil {
		return nil
	}
	return f.journal.DropForm(ctx, f.id)
}

// FieldView is a field as a renderer needs it.
type FieldView struct {
	types.FieldState
	Options []types.Option `json:"options,omitempty"`
}

// View is the renderable state of a form.
type View struct {
	ID     string            `json:"id"`
	Fields []FieldView       `json:"fields"`
	System types.SystemState `json:"system"`
	Errors map[string]string `json:"errors,omitempty"`
	Ready  bool              `json:"ready"`
}

// View returns the current renderable state.
func (f *Form) View() View {
	snap := f.store.Snapshot()
	v := View{
		ID:     f.id,
		Fields: make([]FieldView, len(snap.Fields)),
		System: snap.System,
		Errors: f.store.Errors(),
		Ready:  f.store.IsReadyToSubmit(),
	}
	for i, field := range snap.Fields {
		v.Fields[i] = FieldView{FieldState: field, Options: f.resolver.Options(field.Key)}
	}
	return v
}

// Snapshot returns the raw field state.
func (f *Form) Snapshot() types.FormSnapshot {
	return f.store.Snapshot()
}
