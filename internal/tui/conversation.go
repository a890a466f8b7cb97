package tui

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/chatsync/internal/browser"
	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

// reactEmoji is the reaction toggled by the "+" key.
const reactEmoji = "👍"

type copyResultMsg struct{ err error }

type openResultMsg struct{ err error }

// pageLoadedMsg ends a history load; the page counter moves only on success.
type pageLoadedMsg struct {
	roomID string
	page   int
	err    error
}

// copyToClipboard is swapped in tests.
var copyToClipboard = clipboard.WriteAll

// openURL is swapped in tests.
var openURL = browser.Open

func (a App) updateConvo(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.inputFocused {
		return a.updateInput(msg)
	}

	roomID := a.openRoomID
	switch msg.String() {
	case "q":
		return a, a.quit()
	case "?":
		a.helpOpen = true
	case "esc":
		return a.closeRoom(), nil
	case "i", "enter":
		a.inputFocused = true
	case "r":
		a.page = 1
		return a, a.loadPage(1)
	case "u":
		if !a.hasMore || a.loadingMessages {
			return a, nil
		}
		return a, a.loadPage(a.page + 1)
	case "+":
		if m, ok := a.lastMessage(func(m domain.Message) bool { return !m.IsPending() && !m.Deleted }); ok {
			return a, a.run(func(ctx context.Context, s Store) error {
				return s.ReactToMessage(ctx, roomID, m.ID, reactEmoji)
			})
		}
	case "d":
		if m, ok := a.lastMessage(a.ownConfirmed); ok {
			return a, a.run(func(ctx context.Context, s Store) error {
				return s.DeleteMessage(ctx, roomID, m.ID)
			})
		}
	case "y":
		if m, ok := a.lastMessage(func(m domain.Message) bool { return !m.Deleted && m.Content != "" }); ok {
			text := m.Content
			return a, func() tea.Msg {
				return copyResultMsg{err: copyToClipboard(text)}
			}
		}
	case "o":
		if m, ok := a.lastMessage(func(m domain.Message) bool { return !m.Deleted && m.Attachment != nil }); ok {
			url := m.Attachment.URL
			return a, func() tea.Msg {
				return openResultMsg{err: openURL(url)}
			}
		}
		a.status = "no attachment to open"
	}
	return a, nil
}

func (a App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	roomID := a.openRoomID
	switch msg.Type {
	case tea.KeyEsc:
		a.inputFocused = false
		a.store.SetDraftMessage(roomID, a.input)
		if a.input != "" {
			a.store.SetTyping(roomID, false)
		}
		return a, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(a.input)
		if text == "" {
			return a, nil
		}
		a.input = ""
		a.store.SetTyping(roomID, false)
		if strings.HasPrefix(text, "/") {
			return a.runCommand(text)
		}
		// The store keeps the draft until the server confirms.
		a.store.SetDraftMessage(roomID, text)
		return a, a.run(func(ctx context.Context, s Store) error {
			_, err := s.SendMessage(ctx, roomID, text, "")
			return err
		})

	case tea.KeyRunes:
		a.input = appendText(a.input, string(msg.Runes))
	default:
		prev := a.input
		a.input = editRune(a.input, msg.String())
		if a.input == prev {
			return a, nil
		}
	}
	a.store.SetTyping(roomID, a.input != "")
	return a, nil
}

// runCommand handles the slash commands accepted by the message input:
//
//	/file <path> [caption]   send a file
//	/edit <text>             replace the content of your latest message
//	/leave                   leave the room
func (a App) runCommand(line string) (tea.Model, tea.Cmd) {
	roomID := a.openRoomID
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/file":
		path, caption, _ := strings.Cut(arg, " ")
		if path == "" {
			a.status = "usage: /file <path> [caption]"
			return a, nil
		}
		return a, a.run(func(ctx context.Context, s Store) error {
			return sendFile(ctx, s, roomID, path, strings.TrimSpace(caption))
		})

	case "/edit":
		m, ok := a.lastMessage(a.ownConfirmed)
		if !ok || arg == "" {
			a.status = "nothing to edit"
			return a, nil
		}
		return a, a.run(func(ctx context.Context, s Store) error {
			return s.EditMessage(ctx, roomID, m.ID, arg)
		})

	case "/leave":
		a.input = ""
		a = a.closeRoom()
		return a, a.run(func(ctx context.Context, s Store) error {
			return s.LeaveRoom(ctx, roomID)
		})
	}
	a.status = "unknown command " + name
	return a, nil
}

// sendFile uploads the file at path as a message in roomID.
func sendFile(ctx context.Context, s Store, roomID, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tui.sendFile: %w", err)
	}
	defer f.Close() //nolint:errcheck
	_, err = s.SendMessageWithFile(ctx, roomID, caption, client.FileUpload{
		Name:     filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Reader:   f,
	}, "")
	return err
}

func (a App) run(fn func(context.Context, Store) error) tea.Cmd {
	s := a.store
	return func() tea.Msg {
		return opDoneMsg{err: fn(context.Background(), s)}
	}
}

func (a App) loadPage(page int) tea.Cmd {
	roomID, s := a.openRoomID, a.store
	return func() tea.Msg {
		return pageLoadedMsg{roomID: roomID, page: page, err: s.LoadMessages(context.Background(), roomID, page)}
	}
}

func (a App) ownConfirmed(m domain.Message) bool {
	return m.Sender.ID == a.self.ID && !m.IsPending() && !m.Deleted
}

// lastMessage returns the newest message matching keep.
func (a App) lastMessage(keep func(domain.Message) bool) (domain.Message, bool) {
	for i := len(a.messages) - 1; i >= 0; i-- {
		if keep(a.messages[i]) {
			return a.messages[i], true
		}
	}
	return domain.Message{}, false
}

func (a App) convoView(height int) string {
	room, _ := a.store.Room(a.openRoomID)
	title := room.Title(a.self.ID)
	if title == "" {
		title = a.openRoomID
	}

	var b strings.Builder
	b.WriteString(" " + presenceTitleStyle.Render(title))
	if n := len(room.Participants); n > 0 {
		b.WriteString(metaStyle.Render(fmt.Sprintf(" · %d members", n)))
	}
	b.WriteString("\n")

	var lines []string
	switch {
	case a.loadingMessages:
		lines = append(lines, "  "+dimStyle.Render("loading…"))
	case a.hasMore:
		lines = append(lines, "  "+metaStyle.Render("u  older messages"))
	}
	if len(a.messages) == 0 && !a.loadingMessages {
		lines = append(lines, "  "+dimStyle.Render("no messages yet"))
	}
	for _, m := range a.messages {
		lines = append(lines, a.renderMessage(m)...)
	}

	// Reserve the typing line and the input line.
	budget := max(height-3, 1)
	if len(lines) > budget {
		lines = lines[len(lines)-budget:]
	}
	for _, l := range lines {
		b.WriteString(l + "\n")
	}

	if t := typingLine(a.typing); t != "" {
		b.WriteString("  " + chatSysStyle.Render(t))
	}
	b.WriteString("\n")
	b.WriteString(renderChatInput(a.self.DisplayName(), a.input, "press i to write", a.inputFocused, a.blinkFrame))
	b.WriteString("\n")
	return b.String()
}

const msgIndent = "        " // " " + 5-char timestamp + "  "

func (a App) renderMessage(m domain.Message) []string {
	sep := chatSepStyle.Render(" · ")
	own := m.Sender.ID == a.self.ID

	name := SenderStyle(m.Sender.ID).Render(m.Sender.DisplayName())
	if own {
		name = chatSelfNameStyle.Render(m.Sender.DisplayName())
	}
	head := " " + metaStyle.Render(fmt.Sprintf("%5s", formatChatTime(m.CreatedAt))) + "  " + name + sep

	if m.Deleted {
		return []string{head + chatSysStyle.Render("[deleted]")}
	}

	var body string
	if m.ReplyTo != "" {
		body = metaStyle.Render("↳ ")
	}
	text := oneLine(m.Content)
	if own {
		body += chatSelfTextStyle.Render(text)
	} else {
		body += chatTextStyle.Render(text)
	}
	if m.Edited {
		body += metaStyle.Render(" (edited)")
	}
	if m.IsPending() {
		body += dimStyle.Render(" (sending…)")
	}

	lines := []string{head + body}
	if m.Attachment != nil {
		lines = append(lines, msgIndent+dimStyle.Render("📎 "+formatAttachment(m.Attachment)))
	}
	if r := formatReactions(m.Reactions, a.self.ID); r != "" {
		lines = append(lines, msgIndent+r)
	}
	return lines
}

// formatReactions renders "👍 2  🎉 1" with emojis in a stable order;
// reactions including selfID are highlighted.
func formatReactions(r domain.Reactions, selfID string) string {
	emojis := make([]string, 0, len(r))
	for e, users := range r {
		if len(users) > 0 {
			emojis = append(emojis, e)
		}
	}
	slices.Sort(emojis)

	parts := make([]string, 0, len(emojis))
	for _, e := range emojis {
		part := fmt.Sprintf("%s %d", e, len(r[e]))
		if r.Has(e, selfID) {
			part = accentStyle.Render(part)
		} else {
			part = dimStyle.Render(part)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "  ")
}
