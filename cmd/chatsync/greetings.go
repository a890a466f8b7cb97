package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5eead4")).
			Bold(true)

	cmdStyle  = lipgloss.NewStyle().Bold(true)
	descStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var commands = []struct{ cmd, desc string }{
	{"chatsync", "Open your rooms (interactive TUI)"},
	{"chatsync login [token]", "Save an API token"},
	{"chatsync logout", "Forget the saved token"},
	{"chatsync --version", "Show version"},
	{"chatsync help", "You are here"},
}

var envVars = []struct{ name, desc string }{
	{"CHATSYNC_API_URL", "REST base URL"},
	{"CHATSYNC_WS_URL", "Push endpoint (derived from the API URL)"},
	{"CHATSYNC_TOKEN", "API token (overrides ~/.chatsync/token)"},
	{"CHATSYNC_USER_ID", "Your user id (required), to mark your own messages"},
	{"CHATSYNC_USER_NAME", "Your display name"},
	{"CHATSYNC_LOG_SINK", "stderr, stdout, off or file:/path"},
	{"CHATSYNC_METRICS_ADDR", "Serve Prometheus metrics, e.g. :9100"},
}

func printHelp() {
	fmt.Printf("\n  %s\n\n  Commands:\n", titleStyle.Render("C H A T S Y N C"))
	for _, c := range commands {
		fmt.Printf("    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-24s", c.cmd)), descStyle.Render(c.desc))
	}
	fmt.Printf("\n  Environment:\n")
	for _, e := range envVars {
		fmt.Printf("    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-24s", e.name)), descStyle.Render(e.desc))
	}
	fmt.Println()
}

const (
	tokenHint = "No token found. Run `chatsync login <token>` or set CHATSYNC_TOKEN."
	userHint  = "No user id set. Set CHATSYNC_USER_ID (and optionally CHATSYNC_USER_NAME) to your account id."
)

func printHint(hint string) {
	fmt.Printf("\n  %s\n\n  %s\n\n", titleStyle.Render("CHATSYNC"), descStyle.Render(hint))
}
