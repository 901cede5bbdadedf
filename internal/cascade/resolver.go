// Package cascade keeps dependent selects consistent with their parents.
//
// When a parent field changes, every child of its edges is reset, the
// child's options are re-derived from the parent value, filtered by the
// configured allow-list, and either shown or collapsed into a hidden,
// pre-selected value when a single option remains. Collapsing sets the
// child's value through the store, so the change cascades further down.
package cascade

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/event"
	"github.com/matthewbaird/eventform/internal/textnorm"
	"github.com/matthewbaird/eventform/internal/types"
)

// FieldReader reads current field values.
type FieldReader interface {
	Value(key string) (string, bool)
}

// Store is the part of the field state store the resolver drives.
type Store interface {
	FieldReader
	UpdateField(ctx context.Context, key, value string) bool
	SetFieldVisibility(ctx context.Context, key string, visible bool) bool
	SetFieldDisabled(ctx context.Context, key string, disabled bool) bool
	ClearValidationError(ctx context.Context, key string) bool
}

// Publisher delivers events. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event)
}

// LoadFunc derives the options of a child from its parent's value.
type LoadFunc func(ctx context.Context, parent string, fields FieldReader) ([]types.Option, error)

// Edge links a parent field to the fields that depend on it.
type Edge struct {
	Parent string
	// Children are reset whenever Parent changes. Children[0] receives the
	// derived options; the rest are descendants that only need clearing.
	Children []string
	Load     LoadFunc
	// Filter keeps only options whose value or label matches an entry.
	// An empty filter keeps everything.
	Filter []string
	// Priority substrings move matching labels to the front of the list.
	Priority         []string
	CollapseIfSingle bool
	// When, if set, must accept the parent value for options to be loaded.
	When func(parent string, fields FieldReader) bool
}

// Source populates a select that has no parent.
type Source struct {
	Key              string
	Load             func(ctx context.Context) ([]types.Option, error)
	Filter           []string
	Priority         []string
	CollapseIfSingle bool
}

// Config configures a Resolver.
type Config struct {
	FormID string
	Store  Store
	Bus    Publisher
	Edges  []Edge
	Logger zerolog.Logger
}

type edgeState struct {
	Edge
	gen uint64
}

// Resolver reacts to FieldChanged events and re-derives dependent options.
type Resolver struct {
	formID string
	store  Store
	bus    Publisher
	logger zerolog.Logger

	mu      sync.Mutex
	edges   map[string][]*edgeState
	options map[string][]types.Option
}

// New creates a resolver. Edges without children or a loader are skipped.
func New(cfg Config) *Resolver {
	r := &Resolver{
		formID:  cfg.FormID,
		store:   cfg.Store,
		bus:     cfg.Bus,
		logger:  cfg.Logger.With().Str("component", "cascade").Logger(),
		edges:   make(map[string][]*edgeState),
		options: make(map[string][]types.Option),
	}
	for _, e := range cfg.Edges {
		if len(e.Children) == 0 || e.Load == nil {
			r.logger.Warn().Str("parent", e.Parent).Msg("edge without children or loader skipped")
			continue
		}
		r.edges[e.Parent] = append(r.edges[e.Parent], &edgeState{Edge: e})
	}
	return r
}

// HandleEvent implements eventbus.Handler.
func (r *Resolver) HandleEvent(ctx context.Context, evt event.Event) error {
	if p, ok := evt.Payload.(event.FieldChanged); ok {
		r.Resolve(ctx, p.Key, p.Next)
	}
	return nil
}

// Resolve re-derives every edge of parent for value.
func (r *Resolver) Resolve(ctx context.Context, parent, value string) {
	r.mu.Lock()
	edges := r.edges[parent]
	r.mu.Unlock()

	for _, es := range edges {
		r.resolveEdge(ctx, es, value)
	}
}

func (r *Resolver) resolveEdge(ctx context.Context, es *edgeState, value string) {
	r.mu.Lock()
	es.gen++
	gen := es.gen
	r.mu.Unlock()

	for _, child := range es.Children {
		r.resetChild(ctx, child)
	}

	if value == "" {
		return
	}
	if es.When != nil && !es.When(value, r.store) {
		return
	}

	child := es.Children[0]
	log := r.logger.With().Str("parent", es.Parent).Str("value", value).Str("field", child).Logger()

	opts, err := es.Load(ctx, value, r.store)
	if r.stale(es, gen, value) {
		log.Debug().Msg("stale cascade result discarded")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("loading options failed")
		return
	}

	opts = applyFilter(opts, es.Filter)
	if len(opts) == 0 {
		log.Warn().Msg("no options left after filtering")
		return
	}
	r.apply(ctx, child, opts, es.Priority, es.CollapseIfSingle)
}

// stale reports whether a newer resolution of the edge started, or the
// parent moved on, while options were loading.
func (r *Resolver) stale(es *edgeState, gen uint64, value string) bool {
	r.mu.Lock()
	current := es.gen
	r.mu.Unlock()
	if current != gen {
		return true
	}
	v, _ := r.store.Value(es.Parent)
	return v != value
}

func (r *Resolver) resetChild(ctx context.Context, key string) {
	r.store.SetFieldVisibility(ctx, key, false)
	r.store.UpdateField(ctx, key, "")
	r.store.ClearValidationError(ctx, key)
	r.setOptions(ctx, key, nil)
}

func (r *Resolver) apply(ctx context.Context, key string, opts []types.Option, priority []string, collapse bool) {
	if collapse && len(opts) == 1 {
		r.setOptions(ctx, key, opts)
		r.store.SetFieldDisabled(ctx, key, true)
		r.store.SetFieldVisibility(ctx, key, false)
		r.logger.Debug().Str("field", key).Str("value", opts[0].Value).Msg("single option collapsed")
		r.store.UpdateField(ctx, key, opts[0].Value)
		return
	}
	r.setOptions(ctx, key, prioritize(opts, priority))
	r.store.SetFieldDisabled(ctx, key, false)
	r.store.SetFieldVisibility(ctx, key, true)
}

func (r *Resolver) setOptions(ctx context.Context, key string, opts []types.Option) {
	r.mu.Lock()
	if len(opts) == 0 {
		delete(r.options, key)
	} else {
		r.options[key] = opts
	}
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(ctx, event.New(r.formID, event.OptionsChanged{Key: key, Options: opts}))
	}
}

// Populate fills a root select from src, applying the same filter, priority
// and collapse rules as an edge.
func (r *Resolver) Populate(ctx context.Context, src Source) error {
	opts, err := src.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str("field", src.Key).Msg("loading root options failed")
		return err
	}
	opts = applyFilter(opts, src.Filter)
	if len(opts) == 0 {
		r.logger.Warn().Str("field", src.Key).Msg("no root options left after filtering")
		return nil
	}
	r.apply(ctx, src.Key, opts, src.Priority, src.CollapseIfSingle)
	return nil
}

// Reset drops every option list and invalidates loads still in flight.
func (r *Resolver) Reset(ctx context.Context) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.options))
	for k := range r.options {
		keys = append(keys, k)
	}
	for _, edges := range r.edges {
		for _, es := range edges {
			es.gen++
		}
	}
	r.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		r.setOptions(ctx, k, nil)
	}
}

// Options returns the current options of key.
func (r *Resolver) Options(key string) []types.Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Option(nil), r.options[key]...)
}

// HasOption reports whether value is one of the current options of key.
func (r *Resolver) HasOption(key, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.options[key] {
		if o.Value == value {
			return true
		}
	}
	return false
}

func applyFilter(opts []types.Option, filter []string) []types.Option {
	if len(filter) == 0 {
		return opts
	}
	out := make([]types.Option, 0, len(opts))
	for _, o := range opts {
		if textnorm.MatchesAny(filter, o.Value, o.Label) {
			out = append(out, o)
		}
	}
	return out
}

// prioritize moves priority options to the front, keeping relative order in
// both groups.
func prioritize(opts []types.Option, priority []string) []types.Option {
	head := make([]types.Option, 0, len(opts))
	var tail []types.Option
	for _, o := range opts {
		if !o.IsPriority {
			for _, p := range priority {
				if textnorm.Contains(o.Label, p) {
					o.IsPriority = true
					break
				}
			}
		}
		if o.IsPriority {
			head = append(head, o)
		} else {
			tail = append(tail, o)
		}
	}
	return append(head, tail...)
}
