package activity

import (
	"context"

	"github.com/matthewbaird/eventform/internal/event"
)

// Recorder journals bus events. It implements eventbus.Handler.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// HandleEvent writes one entry per event.
func (r *Recorder) HandleEvent(ctx context.Context, evt event.Event) error {
	return r.store.WriteEntries(ctx, []Entry{EntryFromEvent(evt)})
}
