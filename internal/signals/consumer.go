package signals

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/event"
)

// Consumer classifies form events as they are published and logs the ones
// that show user friction. It implements eventbus.Handler.
type Consumer struct {
	logger zerolog.Logger
	min    Weight
}

// NewConsumer logs events weighing at least min.
func NewConsumer(logger zerolog.Logger, min Weight) *Consumer {
	return &Consumer{
		logger: logger.With().Str("component", "signals").Logger(),
		min:    min,
	}
}

func (c *Consumer) HandleEvent(_ context.Context, evt event.Event) error {
	w := Classify(activity.EntryFromEvent(evt))
	if !w.AtLeast(c.min) {
		return nil
	}
	c.logger.Info().
		Str("form", evt.FormID).
		Str("kind", string(evt.Kind)).
		Str("field", evt.FieldKey()).
		Str("weight", string(w)).
		Msg(evt.Payload.Summary())
	return nil
}
