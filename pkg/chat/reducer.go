package chat

import (
	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/pkg/domain"
)

// HandleEvent applies one pushed event to the store.
//
// message events are inserted into whichever room they name, at most once per
// id. typing events only touch the active room. user_joined and user_left
// reload the active room in the background. Edits, deletes and reactions
// update the named message when it is present.
func (s *Store) HandleEvent(ev domain.Event) {
	s.metrics.Events.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case domain.EventMessage:
		s.onMessage(ev)
	case domain.EventTyping:
		s.onTyping(ev)
	case domain.EventUserJoined, domain.EventUserLeft:
		s.onMembership(ev)
	case domain.EventMessageEdited:
		if ev.Message == nil {
			return
		}
		upd := *ev.Message
		s.patch(roomOf(ev), upd.ID, func(m *domain.Message) { mergeMessage(m, upd) })
	case domain.EventMessageDeleted:
		s.patch(ev.RoomID, ev.MessageID, func(m *domain.Message) { m.Deleted = true })
	case domain.EventReaction:
		reactions := ev.Reactions.Clone()
		if reactions == nil {
			reactions = domain.Reactions{}
		}
		s.patch(ev.RoomID, ev.MessageID, func(m *domain.Message) { m.Reactions = reactions })
	default:
		s.log.Debug("event_ignored", zap.String("type", string(ev.Type)))
	}
}

// handleConnectionEvent receives every event on the connection. Events for
// the subscribed active room already arrive through its room listener.
func (s *Store) handleConnectionEvent(ev domain.Event) {
	s.mu.Lock()
	subscribed := s.roomUnsub != nil && ev.RoomID == s.activeRoomID
	s.mu.Unlock()
	if subscribed {
		return
	}
	s.HandleEvent(ev)
}

func roomOf(ev domain.Event) string {
	if ev.RoomID == "" && ev.Message != nil {
		return ev.Message.RoomID
	}
	return ev.RoomID
}

func (s *Store) onMessage(ev domain.Event) {
	if ev.Message == nil {
		return
	}
	msg := ev.Message.Clone()
	msg.RoomID = roomOf(ev)
	msg.State = domain.Confirmed

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.insertLocked(msg) {
		return
	}
	if s.unreadOnPush && msg.RoomID != s.activeRoomID && msg.Sender.ID != s.self.ID {
		s.unread[msg.RoomID]++
	}
	s.changedLocked()
}

func (s *Store) onTyping(ev domain.Event) {
	if ev.UserID == s.self.ID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ev.RoomID == "" || ev.RoomID != s.activeRoomID {
		return
	}
	if ev.IsTyping {
		s.addTypingLocked(ev.RoomID, domain.ChatUser{ID: ev.UserID, Name: ev.UserName})
	} else if !s.removeTypingLocked(ev.RoomID, ev.UserID) {
		return
	}
	s.changedLocked()
}

func (s *Store) onMembership(ev domain.Event) {
	s.mu.Lock()
	roomID := s.activeRoomID
	if s.closed || roomID == "" || ev.RoomID != roomID {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.LoadRoom(s.baseCtx, roomID); err != nil {
			s.log.Debug("membership_reload_failed", zap.String("room", roomID), zap.Error(err))
		}
	}()
}

// patch applies fn to a present message; missing rooms or ids are ignored.
func (s *Store) patch(roomID, messageID string, fn func(*domain.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.updateLocked(roomID, messageID, fn) {
		s.changedLocked()
	}
}
