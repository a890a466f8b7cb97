package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

var errBoom = errors.New("boom")

// fakeAPI answers from canned data. A non-nil hook replaces the canned answer.
type fakeAPI struct {
	mu sync.Mutex

	rooms    []domain.Room
	roomByID map[string]domain.Room
	pages    map[int][]domain.Message // newest first, like the server
	err      error

	sendFn  func(ctx context.Context, req client.SendMessageRequest) (*domain.Message, error)
	editFn  func(roomID, messageID, content string) (*domain.Message, error)
	reactFn func(roomID, messageID, emoji, action string) (domain.Reactions, error)

	sent          []client.SendMessageRequest
	groupRequests []client.CreateGroupRequest
	getRoomCalls  []string
	reactActions  []string
}

func (f *fakeAPI) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeAPI) failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeAPI) ListAllRooms(ctx context.Context) ([]domain.Room, error) {
	if err := f.failure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Room(nil), f.rooms...), nil
}

func (f *fakeAPI) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	f.mu.Lock()
	f.getRoomCalls = append(f.getRoomCalls, id)
	f.mu.Unlock()
	if err := f.failure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roomByID[id]
	if !ok {
		return nil, &client.HTTPError{StatusCode: 404, Message: "not found"}
	}
	return &r, nil
}

func (f *fakeAPI) CreateDirectRoom(ctx context.Context, userID string) (*domain.Room, error) {
	if err := f.failure(); err != nil {
		return nil, err
	}
	return &domain.Room{
		ID:           "dm-" + userID,
		Type:         domain.RoomDirect,
		Participants: []domain.ChatUser{{ID: "me"}, {ID: userID}},
	}, nil
}

func (f *fakeAPI) CreateGroupRoom(ctx context.Context, req client.CreateGroupRequest) (*domain.Room, error) {
	f.mu.Lock()
	f.groupRequests = append(f.groupRequests, req)
	f.mu.Unlock()
	if err := f.failure(); err != nil {
		return nil, err
	}
	return &domain.Room{ID: "grp-" + req.Name, Type: domain.RoomGroup, Name: req.Name}, nil
}

func (f *fakeAPI) LeaveRoom(ctx context.Context, id string) error { return f.failure() }

func (f *fakeAPI) MarkRead(ctx context.Context, id string) error { return f.failure() }

func (f *fakeAPI) GetMessages(ctx context.Context, roomID string, page, pageSize int) ([]domain.Message, error) {
	if err := f.failure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.pages[page]...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req client.SendMessageRequest) (*domain.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	if err := f.failure(); err != nil {
		return nil, err
	}
	return &domain.Message{ID: "srv-1", RoomID: req.RoomID, Content: req.Content, Type: req.Type}, nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, roomID, messageID, content string) (*domain.Message, error) {
	if f.editFn != nil {
		return f.editFn(roomID, messageID, content)
	}
	if err := f.failure(); err != nil {
		return nil, err
	}
	return &domain.Message{ID: messageID, RoomID: roomID, Content: content, Edited: true}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	return f.failure()
}

func (f *fakeAPI) ToggleReaction(ctx context.Context, roomID, messageID, emoji, action string) (domain.Reactions, error) {
	f.mu.Lock()
	f.reactActions = append(f.reactActions, action)
	f.mu.Unlock()
	if f.reactFn != nil {
		return f.reactFn(roomID, messageID, emoji, action)
	}
	if err := f.failure(); err != nil {
		return nil, err
	}
	return domain.Reactions{}, nil
}

type typingCall struct {
	room   string
	typing bool
}

// fakeTransport records subscriptions and lets tests push events the way
// *socket.Conn dispatches them: to room listeners and to connection-wide ones.
type fakeTransport struct {
	mu           sync.Mutex
	joined       map[string]bool
	joins        []string
	leaves       []string
	typing       []typingCall
	roomHandlers map[string]map[int]func(domain.Event)
	handlers     map[int]func(domain.Event)
	next         int
	connected    bool
	connectErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		joined:       make(map[string]bool),
		roomHandlers: make(map[string]map[int]func(domain.Event)),
		handlers:     make(map[int]func(domain.Event)),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) JoinRoom(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[roomID] = true
	f.joins = append(f.joins, roomID)
	return nil
}

func (f *fakeTransport) LeaveRoom(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.joined, roomID)
	f.leaves = append(f.leaves, roomID)
	return nil
}

func (f *fakeTransport) SendTyping(roomID string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{roomID, typing})
	return nil
}

func (f *fakeTransport) OnRoomEvent(roomID string, fn func(domain.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	if f.roomHandlers[roomID] == nil {
		f.roomHandlers[roomID] = make(map[int]func(domain.Event))
	}
	f.roomHandlers[roomID][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.roomHandlers[roomID], id)
	}
}

func (f *fakeTransport) OnEvent(fn func(domain.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

// subscribed reports whether roomID is joined and has a listener.
func (f *fakeTransport) subscribed(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined[roomID] && len(f.roomHandlers[roomID]) > 0
}

func (f *fakeTransport) typingCalls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.typing...)
}

func (f *fakeTransport) emit(ev domain.Event) {
	f.mu.Lock()
	var fns []func(domain.Event)
	for _, fn := range f.handlers {
		fns = append(fns, fn)
	}
	for _, fn := range f.roomHandlers[ev.RoomID] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var self = domain.ChatUser{ID: "me", Name: "Me"}

func newTestStore(t *testing.T, api *fakeAPI, tr *fakeTransport, opts ...Option) *Store {
	t.Helper()
	if api == nil {
		api = &fakeAPI{}
	}
	if tr == nil {
		tr = newFakeTransport()
	}
	s := New(api, tr, append([]Option{WithSelf(self)}, opts...)...)
	t.Cleanup(s.Close)
	return s
}

func expectNotice(t *testing.T, s *Store, want string) {
	t.Helper()
	select {
	case n := <-s.Notices():
		if n.String() != want {
			t.Errorf("notice = %q, want %q", n.String(), want)
		}
	case <-time.After(time.Second):
		t.Fatalf("no notice, want %q", want)
	}
}

func expectNoNotice(t *testing.T, s *Store) {
	t.Helper()
	select {
	case n := <-s.Notices():
		t.Errorf("unexpected notice %q (%v)", n.String(), n.Err)
	default:
	}
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func msg(id, roomID string, minute int) domain.Message {
	return domain.Message{
		ID:        id,
		RoomID:    roomID,
		Sender:    domain.ChatUser{ID: "u2", Name: "Ann"},
		Content:   "content " + id,
		Type:      domain.MessageText,
		CreatedAt: time.Date(2026, 3, 1, 10, minute, 0, 0, time.UTC),
	}
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
