// Package tui is the terminal front end over the chat synchronization store.
// It never talks to the server directly: every action goes through the store,
// and every repaint is driven by the store's change signal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/chatsync/pkg/chat"
	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

// noticeTTL is how long a failure notice stays on screen.
const noticeTTL = 5 * time.Second

// Store is the subset of *chat.Store the UI reads and drives.
type Store interface {
	Self() domain.ChatUser
	Rooms() []domain.Room
	Room(id string) (domain.Room, bool)
	SetActiveRoom(roomID string)
	Messages(roomID string) []domain.Message
	HasMoreMessages(roomID string) bool
	TypingUsers(roomID string) []domain.ChatUser
	TotalUnread() int
	Connected() bool
	LoadingRooms() bool
	LoadingMessages(roomID string) bool
	DraftMessage(roomID string) string
	SetDraftMessage(roomID, content string)
	SetTyping(roomID string, typing bool)
	Changes() <-chan struct{}
	Notices() <-chan chat.Notice

	ConnectSocket(ctx context.Context) error
	LoadRooms(ctx context.Context) error
	LoadMessages(ctx context.Context, roomID string, page int) error
	MarkRoomAsRead(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, roomID, content, replyTo string) (*domain.Message, error)
	SendMessageWithFile(ctx context.Context, roomID, content string, file client.FileUpload, replyTo string) (*domain.Message, error)
	EditMessage(ctx context.Context, roomID, messageID, content string) error
	DeleteMessage(ctx context.Context, roomID, messageID string) error
	ReactToMessage(ctx context.Context, roomID, messageID, emoji string) error
}

type appState int

const (
	roomsState appState = iota
	convoState
)

type (
	storeChangedMsg struct{}
	storeClosedMsg  struct{}
	noticeMsg       struct{ notice chat.Notice }
	noticeExpireMsg struct{ seq int }
	// opDoneMsg ends a store call; failures arrive separately as notices.
	opDoneMsg struct{ err error }
)

// cursorBlinkMsg toggles the input cursor on/off.
type cursorBlinkMsg struct{}

func cursorBlinkCmd() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(time.Time) tea.Msg {
		return cursorBlinkMsg{}
	})
}

// waitForChange blocks until the store signals a change.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return storeClosedMsg{}
		}
		return storeChangedMsg{}
	}
}

func waitForNotice(ch <-chan chat.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{notice: n}
	}
}

// App is the root bubbletea model.
type App struct {
	store   Store
	version string
	self    domain.ChatUser

	state    appState
	helpOpen bool

	// snapshots taken from the store on every change
	rooms           []domain.Room
	messages        []domain.Message
	typing          []domain.ChatUser
	connected       bool
	loadingRooms    bool
	loadingMessages bool
	hasMore         bool
	totalUnread     int

	cursor     int
	openRoomID string
	page       int

	input        string
	inputFocused bool

	notice    string
	noticeSeq int
	status    string

	width      int
	height     int
	blinkFrame int
	logoFrame  int
}

// NewApp creates the root model over store.
func NewApp(store Store, version string) App {
	a := App{
		store:   store,
		version: version,
		self:    store.Self(),
		width:   80,
		height:  24,
	}
	a.refresh()
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(a.store.Changes()),
		waitForNotice(a.store.Notices()),
		a.connect(),
		a.loadRooms(),
		cursorBlinkCmd(),
		shimmerTickCmd(),
	)
}

// refresh copies the store's current view into the model.
func (a *App) refresh() {
	a.rooms = a.store.Rooms()
	a.connected = a.store.Connected()
	a.loadingRooms = a.store.LoadingRooms()
	a.totalUnread = a.store.TotalUnread()
	if a.cursor >= len(a.rooms) {
		a.cursor = max(len(a.rooms)-1, 0)
	}
	if a.openRoomID == "" {
		a.messages, a.typing = nil, nil
		a.hasMore, a.loadingMessages = false, false
		return
	}
	a.messages = a.store.Messages(a.openRoomID)
	a.typing = a.store.TypingUsers(a.openRoomID)
	a.hasMore = a.store.HasMoreMessages(a.openRoomID)
	a.loadingMessages = a.store.LoadingMessages(a.openRoomID)
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case storeChangedMsg:
		a.refresh()
		return a, waitForChange(a.store.Changes())

	case storeClosedMsg:
		return a, tea.Quit

	case noticeMsg:
		a.noticeSeq++
		a.notice = msg.notice.String()
		seq := a.noticeSeq
		return a, tea.Batch(
			waitForNotice(a.store.Notices()),
			tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpireMsg{seq: seq} }),
		)

	case noticeExpireMsg:
		if msg.seq == a.noticeSeq {
			a.notice = ""
		}
		return a, nil

	case copyResultMsg:
		if msg.err != nil {
			a.status = "copy failed: " + msg.err.Error()
		} else {
			a.status = "copied to clipboard"
		}
		return a, nil

	case openResultMsg:
		if msg.err != nil {
			a.status = "could not open attachment: " + msg.err.Error()
		}
		return a, nil

	case opDoneMsg:
		return a, nil

	case pageLoadedMsg:
		if msg.err == nil && msg.roomID == a.openRoomID && msg.page > a.page {
			a.page = msg.page
		}
		return a, nil

	case cursorBlinkMsg:
		a.blinkFrame++
		return a, cursorBlinkCmd()

	case shimmerTickMsg:
		a.logoFrame++
		return a, shimmerTickCmd()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, a.quit()
		}
		a.status = ""
		if a.helpOpen {
			a.helpOpen = false
			return a, nil
		}
		if a.state == convoState {
			return a.updateConvo(msg)
		}
		return a.updateRooms(msg)
	}
	return a, nil
}

// quit stops the typing signal and parks the draft before exiting.
func (a App) quit() tea.Cmd {
	if a.openRoomID != "" {
		a.store.SetDraftMessage(a.openRoomID, a.input)
		if a.input != "" {
			a.store.SetTyping(a.openRoomID, false)
		}
	}
	return tea.Quit
}

func (a App) connect() tea.Cmd {
	s := a.store
	return func() tea.Msg {
		return opDoneMsg{err: s.ConnectSocket(context.Background())}
	}
}

func (a App) loadRooms() tea.Cmd {
	s := a.store
	return func() tea.Msg {
		return opDoneMsg{err: s.LoadRooms(context.Background())}
	}
}

func (a App) View() string {
	if a.helpOpen {
		return helpView(a.version)
	}

	logo := renderShimmerLogo("CHATSYNC", a.logoFrame)
	status := dimStyle.Render("○ offline")
	if a.connected {
		status = presenceDotStyle.Render("●") + " " + dimStyle.Render("online")
	}
	if a.totalUnread > 0 {
		status += metaStyle.Render(" · ") + unreadStyle.Render(fmt.Sprintf("%d unread", a.totalUnread))
	}
	pad := max(a.width-lipgloss.Width(logo)-lipgloss.Width(status)-2, 1)
	header := " " + logo + strings.Repeat(" ", pad) + status

	// Chrome: header(1) + gap(1) + notice(1) + help(1)
	bodyHeight := max(a.height-4, 3)
	var body string
	if a.state == convoState {
		body = a.convoView(bodyHeight)
	} else {
		body = a.roomsView(bodyHeight)
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(body)
	if n := bodyHeight - strings.Count(body, "\n"); n > 0 {
		padLines(n, &b)
	}
	switch {
	case a.notice != "":
		b.WriteString(" " + rejectStyle.Render(a.notice))
	case a.status != "":
		b.WriteString(" " + dimStyle.Render(a.status))
	}
	b.WriteString("\n")
	b.WriteString(" " + a.helpBar())
	return b.String()
}

func (a App) helpBar() string {
	var entries []string
	switch {
	case a.state == convoState && a.inputFocused:
		entries = []string{helpEntry("enter", "send"), helpEntry("esc", "done"), helpEntry("/file /edit /leave", "commands")}
	case a.state == convoState:
		entries = []string{
			helpEntry("i", "write"), helpEntry("u", "older"), helpEntry("+", "react"),
			helpEntry("d", "delete"), helpEntry("y", "copy"), helpEntry("o", "open"),
			helpEntry("esc", "back"), helpEntry("?", "help"),
		}
	default:
		entries = []string{
			helpEntry("j/k", "move"), helpEntry("enter", "open"), helpEntry("r", "reload"),
			helpEntry("?", "help"), helpEntry("q", "quit"),
		}
	}
	return strings.Join(entries, "  ")
}
