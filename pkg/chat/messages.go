package chat

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

// LoadMessages fetches one page of roomID's history. Page 1 replaces the
// sequence, keeping pending sends and anything newer than the page at the
// tail; later pages are prepended.
// Ids already present are skipped.
func (s *Store) LoadMessages(ctx context.Context, roomID string, page int) error {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loadingMessages[roomID]++
	s.changedLocked()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.loadingMessages[roomID]--; s.loadingMessages[roomID] <= 0 {
			delete(s.loadingMessages, roomID)
		}
		s.changedLocked()
		s.mu.Unlock()
	}()

	rctx, cancel := s.request(ctx)
	defer cancel()
	fetched, err := s.api.GetMessages(rctx, roomID, page, s.pageSize)
	if err != nil {
		return s.fail("chat.LoadMessages", ActionLoadMessages, err)
	}
	// newest first on the wire
	slices.Reverse(fetched)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.messages[roomID]

	seen := make(map[string]struct{}, len(fetched)+len(existing))
	if page > 1 {
		for _, m := range existing {
			seen[m.ID] = struct{}{}
		}
	}
	seq := make([]domain.Message, 0, len(fetched)+len(existing))
	for _, m := range fetched {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.RoomID == "" {
			m.RoomID = roomID
		}
		m.State = domain.Confirmed
		seq = append(seq, m)
	}
	if page > 1 {
		seq = append(seq, existing...)
	} else {
		// Keep pending sends, and confirmed messages that arrived after the
		// page was cut.
		var newest time.Time
		if n := len(seq); n > 0 {
			newest = seq[n-1].CreatedAt
		}
		for _, m := range existing {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			if m.IsPending() || m.CreatedAt.After(newest) {
				seq = append(seq, m)
			}
		}
		if n := len(seq); n > 0 {
			s.touchRoomLocked(seq[n-1])
		}
	}
	s.messages[roomID] = seq
	s.hasMore[roomID] = len(fetched) >= s.pageSize
	s.changedLocked()
	return nil
}

// SendMessageWithFile sends content with an attachment. There is no pending
// placeholder: the message appears once the server confirms it.
func (s *Store) SendMessageWithFile(ctx context.Context, roomID, content string, file client.FileUpload, replyTo string) (*domain.Message, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	typ := domain.MessageFile
	if strings.HasPrefix(file.MimeType, "image/") {
		typ = domain.MessageImage
	}

	s.mu.Lock()
	known := s.registeredLocked(roomID)
	s.mu.Unlock()

	rctx, cancel := s.request(ctx)
	defer cancel()
	msg, err := s.api.SendMessage(rctx, client.SendMessageRequest{
		RoomID:  roomID,
		Content: content,
		Type:    typ,
		ReplyTo: replyTo,
		File:    &file,
	})
	if err != nil {
		return nil, s.fail("chat.SendMessageWithFile", ActionSendFile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmLocked(roomID, msg, known && !s.registeredLocked(roomID))
	return msg, nil
}

// confirmLocked inserts a server-confirmed message and clears the room's
// draft. A room left while the request was in flight gets no sequence back.
func (s *Store) confirmLocked(roomID string, msg *domain.Message, left bool) {
	if msg.RoomID == "" {
		msg.RoomID = roomID
	}
	msg.State = domain.Confirmed
	if !left {
		s.insertLocked(msg.Clone())
	}
	delete(s.drafts, roomID)
	s.changedLocked()
}

func (s *Store) registeredLocked(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// EditMessage changes a message's content. The local copy changes only after
// the server confirms.
func (s *Store) EditMessage(ctx context.Context, roomID, messageID, content string) error {
	if s.isClosed() {
		return ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	updated, err := s.api.EditMessage(rctx, roomID, messageID, content)
	if err != nil {
		return s.fail("chat.EditMessage", ActionEditMessage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateLocked(roomID, messageID, func(m *domain.Message) {
		mergeMessage(m, *updated)
		m.Edited = true
	}) {
		s.changedLocked()
	}
	return nil
}

// DeleteMessage deletes a message. The local copy stays in place as a
// tombstone.
func (s *Store) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	if err := s.api.DeleteMessage(rctx, roomID, messageID); err != nil {
		return s.fail("chat.DeleteMessage", ActionDeleteMessage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateLocked(roomID, messageID, func(m *domain.Message) { m.Deleted = true }) {
		s.changedLocked()
	}
	return nil
}

// ReactToMessage toggles the local user's emoji reaction: it is removed when
// already present and added otherwise. The reactions map is replaced with the
// server's.
func (s *Store) ReactToMessage(ctx context.Context, roomID, messageID, emoji string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	action := client.ReactionAdd
	s.updateLocked(roomID, messageID, func(m *domain.Message) {
		if m.Reactions.Has(emoji, s.self.ID) {
			action = client.ReactionRemove
		}
	})
	s.mu.Unlock()

	rctx, cancel := s.request(ctx)
	defer cancel()
	reactions, err := s.api.ToggleReaction(rctx, roomID, messageID, emoji, action)
	if err != nil {
		return s.fail("chat.ReactToMessage", ActionReact, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateLocked(roomID, messageID, func(m *domain.Message) { m.Reactions = reactions.Clone() }) {
		s.changedLocked()
	} else {
		s.log.Debug("reaction_target_missing", zap.String("room", roomID), zap.String("message", messageID))
	}
	return nil
}

// mergeMessage copies the server-owned fields of src onto dst.
func mergeMessage(dst *domain.Message, src domain.Message) {
	dst.Content = src.Content
	dst.Edited = dst.Edited || src.Edited
	if src.EditedAt != nil {
		t := *src.EditedAt
		dst.EditedAt = &t
	}
	dst.Deleted = dst.Deleted || src.Deleted
	if src.Reactions != nil {
		dst.Reactions = src.Reactions.Clone()
	}
	if src.ReadBy != nil {
		dst.ReadBy = slices.Clone(src.ReadBy)
	}
	if src.Attachment != nil {
		a := *src.Attachment
		dst.Attachment = &a
	}
}
