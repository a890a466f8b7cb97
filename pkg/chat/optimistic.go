package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

// newTempID returns a session-unique id for a pending message.
func newTempID() string {
	return domain.TempIDPrefix + uuid.NewString()
}

// SendMessage sends a text message optimistically. A pending placeholder is
// appended at once; on success it is swapped for the server's message and the
// room's draft is cleared, on failure (or timeout) it is removed.
func (s *Store) SendMessage(ctx context.Context, roomID, content, replyTo string) (*domain.Message, error) {
	pending := domain.Message{
		ID:        newTempID(),
		RoomID:    roomID,
		Sender:    s.self,
		Content:   content,
		Type:      domain.MessageText,
		CreatedAt: s.now(),
		ReplyTo:   replyTo,
		Reactions: domain.Reactions{},
		ReadBy:    []string{},
		State:     domain.Pending,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.messages[roomID] = append(s.messages[roomID], pending)
	s.changedLocked()
	s.mu.Unlock()

	rctx, cancel := s.request(ctx)
	defer cancel()
	msg, err := s.api.SendMessage(rctx, client.SendMessageRequest{
		RoomID:  roomID,
		Content: content,
		Type:    domain.MessageText,
		ReplyTo: replyTo,
	})

	s.mu.Lock()
	placed := s.removeLocked(roomID, pending.ID)
	if err != nil {
		s.changedLocked()
		s.mu.Unlock()
		s.metrics.Sends.WithLabelValues(SendRolledBack).Inc()
		s.log.Info("optimistic_send_rolled_back", zap.String("room", roomID), zap.String("temp_id", pending.ID))
		return nil, s.fail("chat.SendMessage", ActionSendMessage, err)
	}
	s.confirmLocked(roomID, msg, !placed && !s.registeredLocked(roomID))
	s.mu.Unlock()

	s.metrics.Sends.WithLabelValues(SendConfirmed).Inc()
	s.log.Debug("optimistic_send_confirmed", zap.String("room", roomID), zap.String("id", msg.ID))
	return msg, nil
}
