package activity

import (
	"context"
	"time"

	"github.com/matthewbaird/eventform/internal/event"
)

// Entry is one journaled event.
type Entry struct {
	Seq        int64         `json:"seq"`
	EventID    string        `json:"event_id"`
	FormID     string        `json:"form_id"`
	Kind       string        `json:"kind"`
	FieldKey   string        `json:"field_key,omitempty"`
	Summary    string        `json:"summary"`
	OccurredAt time.Time     `json:"occurred_at"`
	Payload    event.Payload `json:"payload,omitempty"`
}

// Store persists and queries activity entries.
type Store interface {
	WriteEntries(ctx context.Context, entries []Entry) error
	// QueryByForm returns matching entries newest first, the cursor of the
	// next page ("" when there is none) and the total match count.
	QueryByForm(ctx context.Context, formID string, opts QueryOptions) ([]Entry, string, int, error)
	DropForm(ctx context.Context, formID string) error
}

// EntryFromEvent converts a bus event into an entry.
func EntryFromEvent(evt event.Event) Entry {
	e := Entry{
		EventID:    evt.ID,
		FormID:     evt.FormID,
		Kind:       string(evt.Kind),
		FieldKey:   evt.FieldKey(),
		OccurredAt: evt.OccurredAt,
		Payload:    evt.Payload,
	}
	if evt.Payload != nil {
		e.Summary = evt.Payload.Summary()
	}
	return e
}
