package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/event"
	"github.com/matthewbaird/eventform/internal/eventbus"
	"github.com/matthewbaird/eventform/internal/form"
	"github.com/matthewbaird/eventform/internal/session"
)

// sendBuffer is how many outgoing messages may queue per connection. Events
// beyond it are dropped; the client can resync with a "view" message.
const sendBuffer = 256

// Handler manages WebSocket connections to form sessions.
type Handler struct {
	sessions *session.Manager
	logger   zerolog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *session.Manager, logger zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger.With().Str("component", "wire").Logger()}
}

// ServeHTTP upgrades to WebSocket, streams the session's events and applies
// the client's input until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := h.sessions.Get(r.Context(), id)
	if sess == nil {
		http.Error(w, "form session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := h.logger.With().Str("session", sess.ID).Str("conn", uuid.NewString()).Logger()
	out := make(chan ServerMessage, sendBuffer)
	var dropped atomic.Int64

	go h.writeLoop(ctx, cancel, conn, out, log)

	// Events are held back until the session and view replies are queued.
	// An event dropped while the gate is shut is already part of the view,
	// since the store publishes after it mutates.
	var gate sync.Mutex
	streaming := false
	unsubscribe := sess.Form.Bus().Subscribe("wire", eventbus.HandlerFunc(func(_ context.Context, evt event.Event) error {
		gate.Lock()
		defer gate.Unlock()
		if !streaming {
			return nil
		}
		select {
		case out <- ServerMessage{Type: "event", Data: evt}:
		default:
			if n := dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warn().Int64("dropped", n).Msg("client too slow, events dropped")
			}
		}
		return nil
	}))
	defer unsubscribe()

	gate.Lock()
	h.reply(ctx, out, ServerMessage{Type: "session", Data: SessionData{SessionID: sess.ID}})
	h.reply(ctx, out, ServerMessage{Type: "view", Data: sess.Form.View()})
	streaming = true
	gate.Unlock()

	// Message loop
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug().Int("status", int(websocket.CloseStatus(err))).Msg("connection closed")
			}
			return
		}

		if h.sessions.Get(ctx, sess.ID) == nil {
			h.replyError(ctx, out, msg.ID, "session_expired", "form session expired")
			conn.Close(websocket.StatusPolicyViolation, "session expired")
			return
		}

		switch msg.Type {
		case "update":
			h.handleField(ctx, out, sess.Form, msg, true)
		case "touch":
			h.handleField(ctx, out, sess.Form, msg, false)
		case "view":
			h.reply(ctx, out, ServerMessage{Type: "view", RequestID: msg.ID, Data: sess.Form.View()})
		case "validate":
			h.reply(ctx, out, ServerMessage{Type: "result", RequestID: msg.ID, Data: sess.Form.Validate(ctx)})
		case "ping":
			h.reply(ctx, out, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.replyError(ctx, out, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) handleField(ctx context.Context, out chan<- ServerMessage, f *form.Form, msg ClientMessage, update bool) {
	var data FieldData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Key == "" {
		h.replyError(ctx, out, msg.ID, "invalid_data", "field messages need a key")
		return
	}

	var err error
	if update {
		err = f.Update(ctx, data.Key, data.Value)
	} else {
		err = f.Touch(ctx, data.Key)
	}
	switch {
	case errors.Is(err, form.ErrUnknownField):
		h.replyError(ctx, out, msg.ID, "unknown_field", err.Error())
	case errors.Is(err, form.ErrFieldDisabled):
		h.replyError(ctx, out, msg.ID, "field_disabled", err.Error())
	case err != nil:
		h.replyError(ctx, out, msg.ID, "internal_error", err.Error())
	default:
		h.reply(ctx, out, ServerMessage{Type: "ack", RequestID: msg.ID, Data: AckData{Key: data.Key}})
	}
}

// reply queues a response; unlike events, responses wait for buffer space.
func (h *Handler) reply(ctx context.Context, out chan<- ServerMessage, msg ServerMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func (h *Handler) replyError(ctx context.Context, out chan<- ServerMessage, requestID, code, message string) {
	h.reply(ctx, out, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan ServerMessage, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				log.Debug().Err(err).Msg("write error")
				cancel()
				return
			}
		}
	}
}
