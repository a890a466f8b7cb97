package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/pkg/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendQueueSize  = 256
)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for connection lifecycle and dropped frames.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) { c.log = l }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// session is one live websocket connection and its pumps.
type session struct {
	ws   *websocket.Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.stop)
		s.ws.Close() //nolint:errcheck // best-effort close
	})
}

// Conn is the persistent push connection. Room joins survive reconnects: every
// room joined before a disconnect is joined again by the next Connect.
type Conn struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *zap.Logger

	mu           sync.Mutex
	sess         *session
	joined       map[string]struct{}
	roomHandlers map[string]map[uint64]func(domain.Event)
	handlers     map[uint64]func(domain.Event)
	nextID       uint64
}

// New creates a connection to the websocket endpoint at url. Nothing is
// dialled until Connect.
func New(url, token string, opts ...Option) *Conn {
	c := &Conn{
		url:          url,
		token:        token,
		dialer:       websocket.DefaultDialer,
		log:          zap.NewNop(),
		joined:       make(map[string]struct{}),
		roomHandlers: make(map[string]map[uint64]func(domain.Event)),
		handlers:     make(map[uint64]func(domain.Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server and starts the read and write pumps. It is a no-op
// when already connected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return nil
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("socket.Connect: dial: HTTP %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("socket.Connect: dial: %w", err)
	}

	s := &session{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		stop: make(chan struct{}),
	}
	c.sess = s
	go c.writePump(s)
	go c.readPump(s)

	for roomID := range c.joined {
		if err := c.enqueueLocked(clientFrame{Action: actionJoin, RoomID: roomID}); err != nil {
			c.log.Warn("rejoin_failed", zap.String("room", roomID), zap.Error(err))
		}
	}
	c.log.Info("socket_connected", zap.String("url", c.url), zap.Int("rooms", len(c.joined)))
	return nil
}

// Disconnect closes the live connection. Joined rooms are remembered.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.log.Debug("close_frame_failed", zap.Error(err))
	}
	s.close()
	c.log.Info("socket_disconnected")
	return nil
}

// Connected reports whether a connection is live.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// JoinRoom subscribes the connection to a room's events. When offline the
// join is recorded and sent on the next Connect.
func (c *Conn) JoinRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[roomID] = struct{}{}
	if c.sess == nil {
		return nil
	}
	return c.enqueueLocked(clientFrame{Action: actionJoin, RoomID: roomID})
}

// LeaveRoom unsubscribes the connection from a room.
func (c *Conn) LeaveRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, roomID)
	if c.sess == nil {
		return nil
	}
	return c.enqueueLocked(clientFrame{Action: actionLeave, RoomID: roomID})
}

// SendTyping signals the local user's typing state for a room.
func (c *Conn) SendTyping(roomID string, typing bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ErrNotConnected
	}
	return c.enqueueLocked(clientFrame{Action: actionTyping, RoomID: roomID, IsTyping: &typing})
}

// OnRoomEvent registers fn for events addressed to roomID and returns a func
// that removes it.
func (c *Conn) OnRoomEvent(roomID string, fn func(domain.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	if c.roomHandlers[roomID] == nil {
		c.roomHandlers[roomID] = make(map[uint64]func(domain.Event))
	}
	c.roomHandlers[roomID][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.roomHandlers[roomID], id)
		if len(c.roomHandlers[roomID]) == 0 {
			delete(c.roomHandlers, roomID)
		}
	}
}

// OnEvent registers fn for every event on the connection, whichever room it
// names, and returns a func that removes it.
func (c *Conn) OnEvent(fn func(domain.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *Conn) enqueueLocked(f clientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	select {
	case c.sess.send <- data:
		return nil
	default:
		c.log.Warn("send_queue_full", zap.String("action", f.Action), zap.String("room", f.RoomID))
		return ErrSendQueueFull
	}
}

func (c *Conn) dispatch(ev domain.Event) {
	c.mu.Lock()
	fns := make([]func(domain.Event), 0, len(c.handlers)+len(c.roomHandlers[ev.RoomID]))
	for _, fn := range c.handlers {
		fns = append(fns, fn)
	}
	for _, fn := range c.roomHandlers[ev.RoomID] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// dropSession forgets s if it is still the live session.
func (c *Conn) dropSession(s *session) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
	s.close()
}

func (c *Conn) writePump(s *session) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.dropSession(s)
	}()

	for {
		select {
		case data := <-s.send:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Warn("socket_write_failed", zap.Error(err))
				}
				return
			}
		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (c *Conn) readPump(s *session) {
	defer c.dropSession(s)

	s.ws.SetReadLimit(maxMessageSize)
	s.ws.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("socket_read_failed", zap.Error(err))
			}
			return
		}

		var ev domain.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Warn("socket_bad_frame", zap.ByteString("frame", raw), zap.Error(err))
			continue
		}
		if !ev.Type.Known() {
			c.log.Debug("socket_unknown_event", zap.String("type", string(ev.Type)))
			continue
		}
		c.dispatch(ev)
	}
}
