package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

// SetActiveRoom makes roomID the active room: the previous room's
// subscription is dropped, roomID is joined and its typing set cleared.
// An empty roomID deactivates without joining anything.
func (s *Store) SetActiveRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if roomID != s.activeRoomID || roomID == "" {
		s.unsubscribeLocked()
	}
	if roomID != "" && s.roomUnsub == nil {
		s.roomUnsub = s.transport.OnRoomEvent(roomID, s.HandleEvent)
		if err := s.transport.JoinRoom(roomID); err != nil {
			s.log.Warn("room_join_failed", zap.String("room", roomID), zap.Error(err))
		}
		s.log.Debug("room_subscribed", zap.String("room", roomID))
	}
	delete(s.typing, roomID)
	s.activeRoomID = roomID
	s.changedLocked()
}

// unsubscribeLocked drops the active room's subscription, if any.
func (s *Store) unsubscribeLocked() {
	if s.roomUnsub == nil {
		return
	}
	s.roomUnsub()
	s.roomUnsub = nil
	if err := s.transport.LeaveRoom(s.activeRoomID); err != nil {
		s.log.Warn("room_leave_failed", zap.String("room", s.activeRoomID), zap.Error(err))
	}
	s.log.Debug("room_unsubscribed", zap.String("room", s.activeRoomID))
}

// LoadRooms replaces the registry with the server's room list and resets
// every unread counter to the server's snapshot. Concurrent calls are not
// deduplicated; the last to finish wins.
func (s *Store) LoadRooms(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.loadingRooms++
	s.changedLocked()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loadingRooms--
		s.changedLocked()
		s.mu.Unlock()
	}()

	rctx, cancel := s.request(ctx)
	defer cancel()
	rooms, err := s.api.ListAllRooms(rctx)
	if err != nil {
		return s.fail("chat.LoadRooms", ActionLoadRooms, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]domain.Room, len(rooms))
	s.unread = make(map[string]int, len(rooms))
	for _, r := range rooms {
		s.rooms[r.ID] = r
		s.unread[r.ID] = max(r.UnreadCount, 0)
	}
	s.log.Info("rooms_loaded", zap.Int("count", len(rooms)))
	return nil
}

// LoadRoom fetches one room and merges it into the registry. A room already
// known keeps its local unread counter.
func (s *Store) LoadRoom(ctx context.Context, roomID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	room, err := s.api.GetRoom(rctx, roomID)
	if err != nil {
		return s.fail("chat.LoadRoom", ActionLoadRoom, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRoomLocked(*room)
	return nil
}

// CreateDirectMessage opens (or reuses) the direct room with userID.
func (s *Store) CreateDirectMessage(ctx context.Context, userID string) (*domain.Room, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	room, err := s.api.CreateDirectRoom(rctx, userID)
	if err != nil {
		return nil, s.fail("chat.CreateDirectMessage", ActionCreateRoom, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRoomLocked(*room)
	return room, nil
}

// CreateGroupRoom creates a named group with the given participants.
func (s *Store) CreateGroupRoom(ctx context.Context, name string, participantIDs []string) (*domain.Room, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	room, err := s.api.CreateGroupRoom(rctx, client.CreateGroupRequest{Name: name, ParticipantIDs: participantIDs})
	if err != nil {
		return nil, s.fail("chat.CreateGroupRoom", ActionCreateRoom, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRoomLocked(*room)
	return room, nil
}

func (s *Store) putRoomLocked(room domain.Room) {
	if _, known := s.rooms[room.ID]; !known {
		s.unread[room.ID] = max(room.UnreadCount, 0)
	}
	s.rooms[room.ID] = room
	s.changedLocked()
}

// LeaveRoom leaves roomID on the server and forgets everything held for it.
func (s *Store) LeaveRoom(ctx context.Context, roomID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	if err := s.api.LeaveRoom(rctx, roomID); err != nil {
		return s.fail("chat.LeaveRoom", ActionLeaveRoom, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRoomID == roomID {
		s.unsubscribeLocked()
		s.activeRoomID = ""
	}
	delete(s.rooms, roomID)
	delete(s.messages, roomID)
	delete(s.hasMore, roomID)
	delete(s.unread, roomID)
	delete(s.drafts, roomID)
	delete(s.typing, roomID)
	delete(s.typingLimits, roomID)
	s.changedLocked()
	return nil
}

// MarkRoomAsRead marks roomID read on the server and zeroes its counter.
func (s *Store) MarkRoomAsRead(ctx context.Context, roomID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	rctx, cancel := s.request(ctx)
	defer cancel()
	if err := s.api.MarkRead(rctx, roomID); err != nil {
		return s.fail("chat.MarkRoomAsRead", ActionMarkRead, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[roomID] = 0
	s.changedLocked()
	return nil
}

// ConnectSocket opens the push connection and starts listening for events
// addressed to any room.
func (s *Store) ConnectSocket(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.eventUnsub == nil {
		s.eventUnsub = s.transport.OnEvent(s.handleConnectionEvent)
	}
	s.mu.Unlock()

	rctx, cancel := s.request(ctx)
	defer cancel()
	if err := s.transport.Connect(rctx); err != nil {
		return s.fail("chat.ConnectSocket", ActionConnect, fmt.Errorf("connect: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.changedLocked()
	return nil
}

// DisconnectSocket closes the push connection. Subscriptions are kept and
// take effect again on the next ConnectSocket.
func (s *Store) DisconnectSocket() {
	if err := s.transport.Disconnect(); err != nil {
		s.log.Warn("socket_disconnect_failed", zap.Error(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.changedLocked()
}
