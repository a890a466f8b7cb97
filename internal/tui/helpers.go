package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/naveenspark/chatsync/pkg/domain"
)

// formatTime renders a relative timestamp for the room list.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

// formatChatTime formats a message timestamp as a short wall-clock time (H:MM).
// For messages older than today it shows "Nd ago" to save column space.
func formatChatTime(t time.Time) string {
	now := time.Now()
	y1, mo1, d1 := t.Date()
	y2, mo2, d2 := now.Date()
	if y1 == y2 && mo1 == mo2 && d1 == d2 {
		return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
	}
	days := max(int(now.Sub(t).Hours()/24), 1)
	return fmt.Sprintf("%dd ago", days)
}

// formatAttachment renders "name (size)" for a message attachment.
func formatAttachment(a *domain.Attachment) string {
	if a == nil {
		return ""
	}
	if a.Size <= 0 {
		return a.Name
	}
	return fmt.Sprintf("%s (%s)", a.Name, humanize.Bytes(uint64(a.Size)))
}

// truncStr truncates a string to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}

// oneLine collapses newlines and runs of whitespace for list previews.
func oneLine(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// typingLine describes who is typing, or "" when nobody is.
func typingLine(users []domain.ChatUser) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return users[0].DisplayName() + " is typing…"
	case 2:
		return users[0].DisplayName() + " and " + users[1].DisplayName() + " are typing…"
	default:
		return fmt.Sprintf("%d people are typing…", len(users))
	}
}

// padLines writes n newlines to b.
func padLines(n int, b *strings.Builder) {
	for i := 0; i < n; i++ {
		b.WriteByte('\n')
	}
}
