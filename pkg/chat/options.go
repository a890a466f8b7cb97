package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/pkg/domain"
)

const (
	// DefaultRequestTimeout bounds every API call made by the store.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultTypingTTL is how long a remote typing indicator lives without a refresh.
	DefaultTypingTTL = 6 * time.Second
	// DefaultTypingInterval is the minimum gap between outgoing typing=true signals per room.
	DefaultTypingInterval = 3 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSelf sets the local user. It is the sender of optimistic messages and
// its own typing and unread events are ignored.
func WithSelf(u domain.ChatUser) Option {
	return func(s *Store) { s.self = u }
}

// WithRequestTimeout bounds each API call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Store) { s.requestTimeout = d }
}

// WithTypingTTL sets how long a typing indicator lasts without a refresh.
// Zero keeps indicators until a stop event arrives.
func WithTypingTTL(d time.Duration) Option {
	return func(s *Store) { s.typingTTL = d }
}

// WithTypingInterval sets the minimum gap between outgoing typing=true
// signals for one room. Zero sends every signal.
func WithTypingInterval(d time.Duration) Option {
	return func(s *Store) { s.typingInterval = d }
}

// WithPageSize sets the message history page size.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithUnreadOnPush makes pushed messages for inactive rooms increment the
// room's unread counter. Off by default: counters then change only on
// LoadRooms and MarkRoomAsRead.
func WithUnreadOnPush(on bool) Option {
	return func(s *Store) { s.unreadOnPush = on }
}

// WithRegisterer registers the store's metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *Store) { s.registerer = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}
