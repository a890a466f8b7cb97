package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/chatsync/pkg/domain"
)

func (a App) updateRooms(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, a.quit()
	case "?":
		a.helpOpen = true
	case "j", "down":
		if a.cursor < len(a.rooms)-1 {
			a.cursor++
		}
	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
	case "r":
		return a, a.loadRooms()
	case "enter":
		if a.cursor < len(a.rooms) {
			return a.openRoom(a.rooms[a.cursor].ID)
		}
	}
	return a, nil
}

// openRoom makes roomID the active room, restores its draft and fetches the
// newest page.
func (a App) openRoom(roomID string) (tea.Model, tea.Cmd) {
	a.store.SetActiveRoom(roomID)
	a.state = convoState
	a.openRoomID = roomID
	a.page = 1
	a.input = a.store.DraftMessage(roomID)
	a.inputFocused = false
	a.refresh()

	s := a.store
	return a, tea.Batch(
		func() tea.Msg {
			return opDoneMsg{err: s.LoadMessages(context.Background(), roomID, 1)}
		},
		func() tea.Msg {
			return opDoneMsg{err: s.MarkRoomAsRead(context.Background(), roomID)}
		},
	)
}

// closeRoom parks the draft and returns to the room list.
func (a App) closeRoom() App {
	a.store.SetDraftMessage(a.openRoomID, a.input)
	if a.input != "" {
		a.store.SetTyping(a.openRoomID, false)
	}
	a.store.SetActiveRoom("")
	a.state = roomsState
	a.openRoomID = ""
	a.input = ""
	a.inputFocused = false
	a.refresh()
	return a
}

func (a App) roomsView(height int) string {
	var b strings.Builder
	fmt.Fprintf(&b, " %s\n", sectionHeaderStyle.Render("ROOMS"))

	if len(a.rooms) == 0 {
		if a.loadingRooms {
			b.WriteString("  " + dimStyle.Render("loading rooms…") + "\n")
		} else {
			b.WriteString("  " + dimStyle.Render("no rooms yet") + "\n")
		}
		return b.String()
	}

	// Each room takes two lines: title row and preview row.
	visible := max((height-1)/2, 1)
	start := 0
	if a.cursor >= visible {
		start = a.cursor - visible + 1
	}
	end := min(start+visible, len(a.rooms))

	for i := start; i < end; i++ {
		b.WriteString(a.renderRoomRow(a.rooms[i], i == a.cursor))
	}
	return b.String()
}

func (a App) renderRoomRow(r domain.Room, selected bool) string {
	prefix := "  "
	title := normalStyle.Render(truncStr(r.Title(a.self.ID), 40))
	if selected {
		prefix = accentStyle.Render("▸ ")
		title = selectedStyle.Render(truncStr(r.Title(a.self.ID), 40))
	}
	if r.Type == domain.RoomGroup {
		title += metaStyle.Render(fmt.Sprintf(" · %d", len(r.Participants)))
	}
	if r.UnreadCount > 0 {
		title += " " + unreadStyle.Render(fmt.Sprintf("(%d)", r.UnreadCount))
	}

	when := metaStyle.Render(formatTime(r.LastActivityAt))
	pad := max(a.width-lipgloss.Width(prefix+title)-lipgloss.Width(when)-2, 1)
	row := prefix + title + strings.Repeat(" ", pad) + when
	if selected {
		row = selectedRowBg.Render(row)
	}

	preview := ""
	if m := r.LastMessage; m != nil {
		switch {
		case m.Deleted:
			preview = "[deleted]"
		case m.Attachment != nil && m.Content == "":
			preview = "📎 " + m.Attachment.Name
		default:
			preview = oneLine(m.Content)
		}
		name := m.Sender.DisplayName()
		if m.Sender.ID == a.self.ID {
			name = "you"
		}
		if name != "" {
			preview = name + ": " + preview
		}
	}
	return row + "\n    " + dimStyle.Render(truncStr(preview, max(a.width-6, 10))) + "\n"
}
