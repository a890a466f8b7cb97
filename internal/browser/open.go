// Package browser opens attachment links in the user's default browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// command returns the launcher for the current OS.
var command = func(goos, target string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("open", target), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("unsupported OS: %s", goos)
	}
}

// Open opens an http or https URL. Other schemes are refused so a message
// cannot launch local files or handlers.
func Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("browser.Open: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("browser.Open: refusing %q scheme", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("browser.Open: missing host in %q", rawURL)
	}
	cmd, err := command(runtime.GOOS, u.String())
	if err != nil {
		return fmt.Errorf("browser.Open: %w", err)
	}
	return cmd.Start()
}
