package chat

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const noticeBuffer = 16

// Actions named in notices.
const (
	ActionLoadRooms     = "load chat rooms"
	ActionLoadRoom      = "load chat room"
	ActionCreateRoom    = "create chat room"
	ActionLeaveRoom     = "leave chat room"
	ActionMarkRead      = "mark room as read"
	ActionLoadMessages  = "load messages"
	ActionSendMessage   = "send message"
	ActionSendFile      = "send file"
	ActionEditMessage   = "edit message"
	ActionDeleteMessage = "delete message"
	ActionReact         = "react to message"
	ActionConnect       = "connect to chat"
)

// Notice is a transient, user-facing report of a failed operation.
type Notice struct {
	Action string
	Err    error
	At     time.Time
}

func (n Notice) String() string {
	return "Failed to " + n.Action
}

// Notices delivers one Notice per failed network-backed operation. Notices
// are dropped when the buffer is full.
func (s *Store) Notices() <-chan Notice { return s.notices }

// fail reports a failed operation: one notice, one log line. It returns err
// wrapped with op.
func (s *Store) fail(op, action string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Notices.WithLabelValues(action).Inc()
	s.log.Warn("operation_failed", zap.String("op", op), zap.String("action", action), zap.Error(err))
	if !s.closed {
		select {
		case s.notices <- Notice{Action: action, Err: err, At: s.now()}:
		default:
			s.log.Warn("notice_dropped", zap.String("action", action))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
