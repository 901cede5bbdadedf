package eventbus

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/event"
)

// LogConsumer logs every form event at debug level.
type LogConsumer struct {
	logger zerolog.Logger
}

func NewLogConsumer(logger zerolog.Logger) *LogConsumer {
	return &LogConsumer{logger: logger.With().Str("component", "events").Logger()}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.Event) error {
	c.logger.Debug().
		Str("form", evt.FormID).
		Str("kind", string(evt.Kind)).
		Str("field", evt.FieldKey()).
		Msg(evt.Payload.Summary())
	return nil
}
