package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

// DecodeProgress turns a pub/sub payload into a ProgressResponse.
func DecodeProgress(payload string) (ProgressResponse, error) {
	var ev model.DerivationEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ProgressResponse{}, fmt.Errorf("decode progress event: %w", err)
	}
	if ev.Type == "" {
		return ProgressResponse{}, fmt.Errorf("decode progress event: missing type")
	}
	return ProgressResponse{Event: EventProgress, Derivation: ev}, nil
}
