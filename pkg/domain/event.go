package domain

// EventType names a server-pushed event kind.
type EventType string

const (
	EventMessage        EventType = "message"
	EventTyping         EventType = "typing"
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventReaction       EventType = "reaction"
)

// Known reports whether t is an event kind this client understands.
func (t EventType) Known() bool {
	switch t {
	case EventMessage, EventTyping, EventUserJoined, EventUserLeft,
		EventMessageEdited, EventMessageDeleted, EventReaction:
		return true
	}
	return false
}

// Event is one frame of the push stream. Which fields are set depends on Type:
//
//	message, message_edited    Message
//	typing                     UserID, UserName, IsTyping
//	user_joined, user_left     UserID
//	message_deleted            MessageID
//	reaction                   MessageID, Reactions
type Event struct {
	Type      EventType `json:"type"`
	RoomID    string    `json:"room_id"`
	Message   *Message  `json:"message,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	IsTyping  bool      `json:"is_typing,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Reactions Reactions `json:"reactions,omitempty"`
}
