// Package chat keeps the client's in-memory model of rooms, messages, typing
// users, unread counts and drafts consistent across REST responses, pushed
// socket events and optimistic local sends.
package chat

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

// ErrClosed is returned by operations on a Store after Close.
var ErrClosed = errors.New("chat: store closed")

// API is the request/response half of the transport. *client.Client satisfies it.
type API interface {
	ListAllRooms(ctx context.Context) ([]domain.Room, error)
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	CreateDirectRoom(ctx context.Context, userID string) (*domain.Room, error)
	CreateGroupRoom(ctx context.Context, req client.CreateGroupRequest) (*domain.Room, error)
	LeaveRoom(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	GetMessages(ctx context.Context, roomID string, page, pageSize int) ([]domain.Message, error)
	SendMessage(ctx context.Context, req client.SendMessageRequest) (*domain.Message, error)
	EditMessage(ctx context.Context, roomID, messageID, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, roomID, messageID string) error
	ToggleReaction(ctx context.Context, roomID, messageID, emoji, action string) (domain.Reactions, error)
}

// Transport is the push half of the transport. *socket.Conn satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	SendTyping(roomID string, typing bool) error
	OnRoomEvent(roomID string, fn func(domain.Event)) func()
	OnEvent(fn func(domain.Event)) func()
}

type typingEntry struct {
	user    domain.ChatUser
	expires time.Time
}

// Store is the single owner of chat state. All methods are safe for
// concurrent use; mutations are serialised by one mutex and network calls run
// outside it.
type Store struct {
	api       API
	transport Transport
	log       *zap.Logger
	metrics   *Metrics
	now       func() time.Time

	registerer prometheus.Registerer

	self           domain.ChatUser
	requestTimeout time.Duration
	typingTTL      time.Duration
	typingInterval time.Duration
	pageSize       int
	unreadOnPush   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu              sync.Mutex
	closed          bool
	activeRoomID    string
	roomUnsub       func()
	eventUnsub      func()
	connected       bool
	loadingRooms    int
	loadingMessages map[string]int
	rooms           map[string]domain.Room
	messages        map[string][]domain.Message
	hasMore         map[string]bool
	typing          map[string][]typingEntry
	unread          map[string]int
	drafts          map[string]string
	typingLimits    map[string]*rate.Limiter
	typingTimer     *time.Timer

	changes chan struct{}
	notices chan Notice
}

// New builds a Store over api and transport. Call Close when done.
func New(api API, transport Transport, opts ...Option) *Store {
	s := &Store{
		api:             api,
		transport:       transport,
		log:             zap.NewNop(),
		now:             time.Now,
		self:            domain.ChatUser{ID: "self", Name: "You"},
		requestTimeout:  DefaultRequestTimeout,
		typingTTL:       DefaultTypingTTL,
		typingInterval:  DefaultTypingInterval,
		pageSize:        client.DefaultPageSize,
		loadingMessages: make(map[string]int),
		rooms:           make(map[string]domain.Room),
		messages:        make(map[string][]domain.Message),
		hasMore:         make(map[string]bool),
		typing:          make(map[string][]typingEntry),
		unread:          make(map[string]int),
		drafts:          make(map[string]string),
		typingLimits:    make(map[string]*rate.Limiter),
		changes:         make(chan struct{}, 1),
		notices:         make(chan Notice, noticeBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registerer)
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Close drops the socket subscriptions, stops timers, waits for background
// reloads and closes the Changes and Notices channels. The transport itself
// is left to its owner.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.roomUnsub != nil {
		s.roomUnsub()
		s.roomUnsub = nil
	}
	if s.eventUnsub != nil {
		s.eventUnsub()
		s.eventUnsub = nil
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	close(s.changes)
	close(s.notices)
	s.mu.Unlock()
}

// Changes delivers a signal after state mutations. Signals coalesce: a reader
// that falls behind sees one pending signal, not one per mutation.
func (s *Store) Changes() <-chan struct{} { return s.changes }

// Metrics returns the store's counters.
func (s *Store) Metrics() *Metrics { return s.metrics }

// changedLocked signals Changes. Caller holds s.mu.
func (s *Store) changedLocked() {
	if s.closed {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// request derives a per-call context bounded by the request timeout.
func (s *Store) request(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// --- Views ---

// Self returns the identity used for optimistic messages.
func (s *Store) Self() domain.ChatUser { return s.self }

// ActiveRoomID returns the active room id, or "" when none is active.
func (s *Store) ActiveRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoomID
}

// ActiveRoom returns the active room if it is in the registry.
func (s *Store) ActiveRoom() (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[s.activeRoomID]
	r.UnreadCount = s.unread[r.ID]
	return r, ok && s.activeRoomID != ""
}

// Room returns a registered room by id.
func (s *Store) Room(id string) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	r.UnreadCount = s.unread[id]
	return r, ok
}

// Rooms returns the registry ordered by most recent activity first.
func (s *Store) Rooms() []domain.Room {
	s.mu.Lock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		r.UnreadCount = s.unread[r.ID]
		out = append(out, r)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Messages returns a copy of a room's sequence, oldest first.
func (s *Store) Messages(roomID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.messages[roomID]
	out := make([]domain.Message, len(seq))
	for i, m := range seq {
		out[i] = m.Clone()
	}
	return out
}

// HasMoreMessages reports whether the last page loaded for roomID was full.
func (s *Store) HasMoreMessages(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore[roomID]
}

// UnreadCount returns the room's unread counter.
func (s *Store) UnreadCount(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[roomID]
}

// TotalUnread sums the unread counters of registered rooms.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for id := range s.rooms {
		total += s.unread[id]
	}
	return total
}

// Connected reports whether the push connection is up. Transports that
// report their own state (as *socket.Conn does) are consulted too, so a
// dropped connection shows as disconnected.
func (s *Store) Connected() bool {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if t, ok := s.transport.(interface{ Connected() bool }); ok && connected {
		return t.Connected()
	}
	return connected
}

// LoadingRooms reports whether a room listing is in flight.
func (s *Store) LoadingRooms() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingRooms > 0
}

// LoadingMessages reports whether a message page for roomID is in flight.
func (s *Store) LoadingMessages(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingMessages[roomID] > 0
}

// --- Sequence helpers. Callers hold s.mu. ---

func indexOf(seq []domain.Message, id string) int {
	return slices.IndexFunc(seq, func(m domain.Message) bool { return m.ID == id })
}

// insertLocked appends msg unless a message with its id is already present.
// It reports whether the sequence changed.
func (s *Store) insertLocked(msg domain.Message) bool {
	seq := s.messages[msg.RoomID]
	if indexOf(seq, msg.ID) >= 0 {
		s.metrics.DuplicatesSuppressed.Inc()
		return false
	}
	s.messages[msg.RoomID] = append(seq, msg)
	s.touchRoomLocked(msg)
	return true
}

func (s *Store) removeLocked(roomID, id string) bool {
	seq := s.messages[roomID]
	i := indexOf(seq, id)
	if i < 0 {
		return false
	}
	s.messages[roomID] = slices.Delete(seq, i, i+1)
	return true
}

// updateLocked applies fn to the message with id, if present.
func (s *Store) updateLocked(roomID, id string, fn func(*domain.Message)) bool {
	seq := s.messages[roomID]
	i := indexOf(seq, id)
	if i < 0 {
		return false
	}
	fn(&seq[i])
	return true
}

// touchRoomLocked records msg as the room's latest activity. Pending
// placeholders do not count.
func (s *Store) touchRoomLocked(msg domain.Message) {
	if msg.IsPending() {
		return
	}
	r, ok := s.rooms[msg.RoomID]
	if !ok || msg.CreatedAt.Before(r.LastActivityAt) {
		return
	}
	m := msg.Clone()
	r.LastMessage = &m
	r.LastActivityAt = msg.CreatedAt
	s.rooms[msg.RoomID] = r
}
