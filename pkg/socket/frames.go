package socket

import "errors"

// Outbound frame actions.
const (
	actionJoin   = "join"
	actionLeave  = "leave"
	actionTyping = "typing"
)

var (
	// ErrNotConnected is returned when a frame needs a live connection and there is none.
	ErrNotConnected = errors.New("socket: not connected")
	// ErrSendQueueFull is returned instead of blocking when the outbound queue is saturated.
	ErrSendQueueFull = errors.New("socket: send queue full")
)

// clientFrame is the envelope for everything the client sends.
type clientFrame struct {
	Action   string `json:"action"`
	RoomID   string `json:"room_id"`
	IsTyping *bool  `json:"is_typing,omitempty"`
}
