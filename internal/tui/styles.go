package tui

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Shimmer animation for the header logo.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

// renderShimmerLogo renders text as a flowing wave of teal light,
// deep (#12343a) to bright (#5eead4). Letters are spaced apart.
func renderShimmerLogo(text string, frame int) string {
	n := len(text)
	if n == 0 {
		return ""
	}

	var out strings.Builder
	t := float64(frame)

	for i := 0; i < n; i++ {
		x := float64(i) / float64(max(n-1, 1))

		phase := t*0.1 - x*3.0
		phase += math.Sin(t*0.023) * 2.0

		b := math.Sin(phase)*0.5 + 0.5
		b = math.Pow(b, 1.3)

		tide := math.Sin(t*0.035) * 0.12
		b = b*0.75 + tide + 0.18
		b = min(max(b, 0.05), 1.0)

		r := clampByte(18 + b*(94-18))
		g := clampByte(52 + b*(234-52))
		bl := clampByte(58 + b*(212-58))

		s := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, bl)))
		out.WriteString(s.Render(string(text[i])))

		if i < n-1 {
			out.WriteString(" ")
		}
	}

	return out.String()
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	// Base styles — neutral palette
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	// Help bar
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d4b4"))

	unreadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5eead4")).
			Bold(true)

	rejectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#b45555"))

	selectedRowBg = lipgloss.NewStyle().Background(lipgloss.Color("#1e1e2a"))

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#606878"))

	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#343c4a"))

	chatSelfNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#e4e4ec"))

	chatInputNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#5eead4")) // teal — distinguishes input from chat

	chatComposingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#e4e4ec"))

	chatSelfTextStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#c0c4d0"))

	chatTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	chatSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#404858"))

	chatSysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#404858")).
			Italic(true)

	presenceTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8890a0")).
				Bold(true)

	presenceDotStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#34d474"))

	// Sender colors, picked by hashing the user id
	senderColors = []lipgloss.Color{
		lipgloss.Color("#43e88c"),
		lipgloss.Color("#f0944a"),
		lipgloss.Color("#b8ccdf"),
		lipgloss.Color("#c084e0"),
		lipgloss.Color("#3ecce4"),
		lipgloss.Color("#d4a844"),
		lipgloss.Color("#60a0e0"),
	}
)

// SenderStyle returns a bold style with a stable color for userID.
func SenderStyle(userID string) lipgloss.Style {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID)) //nolint:errcheck
	c := senderColors[h.Sum32()%uint32(len(senderColors))]
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// helpView renders the key reference overlay.
func helpView(version string) string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#5eead4")).
		Bold(true).
		Render("C H A T S Y N C")

	keyStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)

	sections := []struct {
		name string
		keys []struct{ key, desc string }
	}{
		{"Rooms", []struct{ key, desc string }{
			{"j / k", "Move between rooms"},
			{"enter", "Open room"},
			{"r", "Reload rooms"},
		}},
		{"Conversation", []struct{ key, desc string }{
			{"i / enter", "Write a message"},
			{"esc", "Back to rooms (draft is kept)"},
			{"u", "Load older messages"},
			{"+", "React 👍 to the latest message"},
			{"d", "Delete your latest message"},
			{"y", "Copy the latest message"},
			{"o", "Open the latest attachment"},
		}},
		{"Anywhere", []struct{ key, desc string }{
			{"?", "Toggle this help"},
			{"q / ctrl+c", "Quit"},
		}},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s  %s\n", title, metaStyle.Render(version))
	for _, s := range sections {
		fmt.Fprintf(&b, "\n  %s\n", sectionStyle.Render(s.name))
		for _, k := range s.keys {
			fmt.Fprintf(&b, "    %s  %s\n", keyStyle.Render(fmt.Sprintf("%-12s", k.key)), descStyle.Render(k.desc))
		}
	}
	return b.String()
}
