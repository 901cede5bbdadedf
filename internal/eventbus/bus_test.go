package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/eventform/internal/event"
)

func changed(key, next string) event.Event {
	return event.New("form-1", event.FieldChanged{Key: key, Next: next})
}

func TestBus_DispatchesInSubscriptionOrder(t *testing.T) {
	bus := New(zerolog.Nop())
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		bus.Subscribe(name, HandlerFunc(func(context.Context, event.Event) error {
			order = append(order, name)
			return nil
		}))
	}

	bus.Publish(context.Background(), changed("country", "COL"))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestBus_IsolatesFailingHandlers(t *testing.T) {
	bus := New(zerolog.Nop())
	var reached []string
	bus.Subscribe("errors", HandlerFunc(func(context.Context, event.Event) error {
		reached = append(reached, "errors")
		return errors.New("boom")
	}))
	bus.Subscribe("panics", HandlerFunc(func(context.Context, event.Event) error {
		reached = append(reached, "panics")
		panic("listener exploded")
	}))
	bus.Subscribe("last", HandlerFunc(func(context.Context, event.Event) error {
		reached = append(reached, "last")
		return nil
	}))

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), changed("country", "COL"))
	})
	assert.Equal(t, []string{"errors", "panics", "last"}, reached)
}

func TestBus_FilterByKindAndKey(t *testing.T) {
	bus := New(zerolog.Nop())
	var got []string
	bus.OnField("city-watch", "city", HandlerFunc(func(_ context.Context, evt event.Event) error {
		got = append(got, evt.Payload.(event.FieldChanged).Next)
		return nil
	}))

	ctx := context.Background()
	bus.Publish(ctx, changed("department", "91"))
	bus.Publish(ctx, event.New("form-1", event.FieldTouched{Key: "city"}))
	bus.Publish(ctx, changed("city", "91001"))

	assert.Equal(t, []string{"91001"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(zerolog.Nop())
	calls := 0
	unsubscribe := bus.Subscribe("counter", HandlerFunc(func(context.Context, event.Event) error {
		calls++
		return nil
	}))

	bus.Publish(context.Background(), changed("country", "COL"))
	unsubscribe()
	unsubscribe()
	bus.Publish(context.Background(), changed("country", "MEX"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_NestedPublish(t *testing.T) {
	bus := New(zerolog.Nop())
	var seen []string
	bus.Subscribe("recorder", HandlerFunc(func(_ context.Context, evt event.Event) error {
		seen = append(seen, evt.FieldKey())
		return nil
	}))
	bus.OnField("cascade", "country", HandlerFunc(func(ctx context.Context, _ event.Event) error {
		bus.Publish(ctx, changed("department", ""))
		return nil
	}))

	bus.Publish(context.Background(), changed("country", "MEX"))
	assert.Equal(t, []string{"country", "department"}, seen)
}

func TestFilter_Matches(t *testing.T) {
	evt := event.New("f", event.FieldVisibilityChanged{Key: "city", Visible: true})
	assert.True(t, Filter{}.Matches(evt))
	assert.True(t, Filter{Kinds: []event.Kind{event.KindFieldVisibilityChanged}}.Matches(evt))
	assert.False(t, Filter{Kinds: []event.Kind{event.KindFieldChanged}}.Matches(evt))
	assert.False(t, Filter{Key: "department"}.Matches(evt))

	reset := event.New("f", event.StateReset{})
	assert.False(t, Filter{Key: "city"}.Matches(reset))
}
