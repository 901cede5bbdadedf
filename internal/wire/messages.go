// Package wire defines the WebSocket protocol a UI renderer uses to follow
// and drive a form session.
package wire

import "encoding/json"

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "update", "touch", "view", "validate", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// FieldData is the payload for "update" and "touch" messages.
type FieldData struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "view", "event", "ack", "result", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData identifies the session a connection is bound to.
type SessionData struct {
	SessionID string `json:"session_id"`
}

// AckData confirms a field message.
type AckData struct {
	Key string `json:"key"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
