package domain

import "time"

// RoomType is either a direct (1:1) conversation or a named group.
type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// Room is a chat room as listed by the server.
type Room struct {
	ID             string     `json:"id"`
	Type           RoomType   `json:"type"`
	Name           string     `json:"name,omitempty"`
	Participants   []ChatUser `json:"participants"`
	UnreadCount    int        `json:"unread_count"` // server snapshot at fetch time
	LastMessage    *Message   `json:"last_message,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Title returns the name shown for the room. Direct rooms without a name are
// titled after the first participant that is not selfID.
func (r Room) Title(selfID string) string {
	if r.Name != "" {
		return r.Name
	}
	for _, p := range r.Participants {
		if p.ID != selfID {
			return p.DisplayName()
		}
	}
	return r.ID
}

// HasParticipant reports whether userID is a member of the room.
func (r Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
