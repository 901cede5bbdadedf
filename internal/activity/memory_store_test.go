package activity

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/event"
	"github.com/matthewbaird/eventform/internal/eventbus"
)

func testEntry(formID string, kind event.Kind, fieldKey, summary string, minutesAgo int) Entry {
	return Entry{
		EventID:    "test-" + summary,
		FormID:     formID,
		Kind:       string(kind),
		FieldKey:   fieldKey,
		Summary:    summary,
		OccurredAt: time.Now().Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func TestMemoryStore_WriteAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	entries := []Entry{
		testEntry("form-a", event.KindFieldChanged, "country", "country changed", 10),
		testEntry("form-a", event.KindFieldTouched, "email", "email touched", 5),
		testEntry("form-b", event.KindFieldChanged, "country", "country changed", 10),
	}
	if err := store.WriteEntries(ctx, entries); err != nil {
		t.Fatalf("WriteEntries: %v", err)
	}

	results, _, total, err := store.QueryByForm(ctx, "form-a", DefaultQueryOptions())
	if err != nil {
		t.Fatalf("QueryByForm: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(results) != 2 || results[0].Summary != "email touched" {
		t.Errorf("expected newest entry first, got %+v", results)
	}
}

func TestMemoryStore_QueryByForm_FilterKindAndField(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	store.WriteEntries(ctx, []Entry{
		testEntry("form-a", event.KindFieldChanged, "country", "country changed", 3),
		testEntry("form-a", event.KindFieldChanged, "city", "city changed", 2),
		testEntry("form-a", event.KindFieldVisibilityChanged, "city", "city shown", 1),
	})

	opts := DefaultQueryOptions()
	opts.Kinds = []string{string(event.KindFieldChanged)}
	opts.FieldKey = "city"
	results, _, total, err := store.QueryByForm(ctx, "form-a", opts)
	if err != nil {
		t.Fatalf("QueryByForm: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(results) != 1 || results[0].Summary != "city changed" {
		t.Errorf("expected only 'city changed'")
	}
}

func TestMemoryStore_QueryByForm_TimeWindowAndText(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	store.WriteEntries(ctx, []Entry{
		testEntry("form-a", event.KindFieldChanged, "email", "Recent email change", 5),
		testEntry("form-a", event.KindFieldChanged, "email", "Old email change", 120),
		testEntry("form-a", event.KindFieldTouched, "phone", "phone touched", 4),
	})

	since := time.Now().Add(-30 * time.Minute)
	opts := DefaultQueryOptions()
	opts.Since = &since
	opts.Text = "EMAIL"
	results, _, total, err := store.QueryByForm(ctx, "form-a", opts)
	if err != nil {
		t.Fatalf("QueryByForm: %v", err)
	}
	if total != 1 || results[0].Summary != "Recent email change" {
		t.Errorf("expected only 'Recent email change', got %d", total)
	}
}

func TestMemoryStore_Pagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	for i := 0; i < 5; i++ {
		store.WriteEntries(ctx, []Entry{testEntry("form-a", event.KindFieldChanged, "city", "change", 0)})
	}

	opts := DefaultQueryOptions()
	opts.Limit = 2
	page1, cursor, total, _ := store.QueryByForm(ctx, "form-a", opts)
	if total != 5 || len(page1) != 2 || cursor == "" {
		t.Fatalf("page1 = %d entries, total %d, cursor %q", len(page1), total, cursor)
	}

	opts.Cursor = cursor
	page2, _, _, _ := store.QueryByForm(ctx, "form-a", opts)
	if len(page2) != 2 || page2[0].Seq >= page1[1].Seq {
		t.Errorf("page2 must continue after page1: %+v", page2)
	}
}

func TestMemoryStore_BoundedPerForm(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	for i := 0; i < 5; i++ {
		store.WriteEntries(ctx, []Entry{testEntry("form-a", event.KindFieldChanged, "city", "change", 0)})
	}

	results, _, total, _ := store.QueryByForm(ctx, "form-a", DefaultQueryOptions())
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if results[0].Seq != 5 || results[2].Seq != 3 {
		t.Errorf("expected the three newest entries, got seqs %d..%d", results[0].Seq, results[2].Seq)
	}
}

func TestMemoryStore_DropForm(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	store.WriteEntries(ctx, []Entry{testEntry("form-a", event.KindStateReset, "", "form reset", 0)})

	if err := store.DropForm(ctx, "form-a"); err != nil {
		t.Fatalf("DropForm: %v", err)
	}
	if store.Forms() != 0 {
		t.Errorf("forms = %d, want 0", store.Forms())
	}
}

func TestRecorder_JournalsBusEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	bus := eventbus.New(zerolog.Nop())
	bus.Subscribe("activity", NewRecorder(store))

	bus.Publish(ctx, event.New("form-a", event.FieldChanged{Key: "country", Prev: "", Next: "COL"}))
	bus.Publish(ctx, event.New("form-a", event.StateReset{}))

	results, _, total, err := store.QueryByForm(ctx, "form-a", DefaultQueryOptions())
	if err != nil {
		t.Fatalf("QueryByForm: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if results[1].FieldKey != "country" || results[1].Summary != `country changed from "" to "COL"` {
		t.Errorf("unexpected entry %+v", results[1])
	}
	if results[0].Kind != string(event.KindStateReset) {
		t.Errorf("kind = %q, want state_reset", results[0].Kind)
	}
}

func TestMemoryStore_EmptyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	results, _, total, err := store.QueryByForm(ctx, "nobody", DefaultQueryOptions())
	if err != nil {
		t.Fatalf("QueryByForm: %v", err)
	}
	if total != 0 || len(results) != 0 {
		t.Errorf("expected empty results from empty store")
	}
}
