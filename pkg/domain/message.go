package domain

import (
	"slices"
	"strings"
	"time"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageImage MessageType = "image"
)

// MessageState tags a message as a local placeholder or a server record.
type MessageState int

const (
	Confirmed MessageState = iota
	Pending                // optimistic, awaiting the server's copy
)

// TempIDPrefix marks client-generated ids of pending messages.
const TempIDPrefix = "temp-"

// IsTempID reports whether id was generated locally for a pending message.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Attachment describes a file carried by a message.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Reactions maps an emoji to the ids of the users who reacted with it.
type Reactions map[string][]string

// Has reports whether userID reacted with emoji.
func (r Reactions) Has(emoji, userID string) bool {
	return slices.Contains(r[emoji], userID)
}

// Clone returns a deep copy.
func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = slices.Clone(users)
	}
	return out
}

// Message is a single chat message.
type Message struct {
	ID         string       `json:"id"`
	RoomID     string       `json:"room_id"`
	Sender     ChatUser     `json:"sender"`
	Content    string       `json:"content"`
	Type       MessageType  `json:"type"`
	CreatedAt  time.Time    `json:"created_at"`
	Deleted    bool         `json:"is_deleted,omitempty"`
	Edited     bool         `json:"is_edited,omitempty"`
	EditedAt   *time.Time   `json:"edited_at,omitempty"`
	ReplyTo    string       `json:"reply_to,omitempty"` // informational, not validated
	Reactions  Reactions    `json:"reactions,omitempty"`
	ReadBy     []string     `json:"read_by,omitempty"`
	Attachment *Attachment  `json:"attachment,omitempty"`
	State      MessageState `json:"-"`
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	m.Reactions = m.Reactions.Clone()
	m.ReadBy = slices.Clone(m.ReadBy)
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

// IsPending reports whether m is an optimistic placeholder.
func (m Message) IsPending() bool {
	return m.State == Pending
}
