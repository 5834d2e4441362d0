package websocket

import "github.com/vaxsync/vaxsync-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventProgress Event = "progress"
	EventPong     Event = "pong"
)

// ProgressResponse forwards one derivation progress event.
type ProgressResponse struct {
	Event      Event                 `json:"event"`
	Derivation model.DerivationEvent `json:"derivation"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
