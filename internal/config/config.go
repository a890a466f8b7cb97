// Package config resolves chatsync settings from an optional .env file and
// the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIURL is used when CHATSYNC_API_URL is unset.
const DefaultAPIURL = "https://api.chatsync.dev"

// Config holds the CLI's resolved settings.
type Config struct {
	APIURL         string
	WSURL          string
	Token          string
	UserID         string // identity of the signed-in user, used to recognise own messages
	UserName       string
	LogLevel       string
	LogSink        string
	MetricsAddr    string
	RequestTimeout time.Duration
	TypingTTL      time.Duration
	PageSize       int
	UnreadOnPush   bool
}

// Dir returns ~/.chatsync.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".chatsync"), nil
}

// TokenFilePath returns ~/.chatsync/token.
func TokenFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// Load reads .env (if present) and the environment. A token missing from the
// environment is read from the token file; an unset log sink becomes
// ~/.chatsync/chatsync.log so logs do not draw over the terminal UI.
func Load() (*Config, error) {
	_ = godotenv.Load(".env") //nolint:errcheck // .env is optional

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		cfg.Token = readTokenFile()
	}
	if cfg.LogSink == "" {
		if dir, err := Dir(); err == nil && os.MkdirAll(dir, 0o700) == nil {
			cfg.LogSink = "file:" + filepath.Join(dir, "chatsync.log")
		}
	}
	return cfg, nil
}

func readTokenFile() string {
	path, err := TokenFilePath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// FromEnv builds a Config from getenv alone. Invalid values are errors.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key string) string { return strings.TrimSpace(getenv("CHATSYNC_" + key)) }

	cfg := &Config{
		APIURL:      strings.TrimRight(env("API_URL"), "/"),
		WSURL:       env("WS_URL"),
		Token:       env("TOKEN"),
		UserID:      env("USER_ID"),
		UserName:    env("USER_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		LogSink:     env("LOG_SINK"),
		MetricsAddr: env("METRICS_ADDR"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.WSURL == "" {
		ws, err := DeriveWSURL(cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("config: CHATSYNC_API_URL: %w", err)
		}
		cfg.WSURL = ws
	}

	var err error
	if cfg.RequestTimeout, err = parseDuration(env("REQUEST_TIMEOUT"), 30*time.Second); err != nil {
		return nil, fmt.Errorf("config: CHATSYNC_REQUEST_TIMEOUT: %w", err)
	}
	if cfg.TypingTTL, err = parseDuration(env("TYPING_TTL"), 6*time.Second); err != nil {
		return nil, fmt.Errorf("config: CHATSYNC_TYPING_TTL: %w", err)
	}
	if cfg.PageSize, err = parsePositiveInt(env("PAGE_SIZE"), 50); err != nil {
		return nil, fmt.Errorf("config: CHATSYNC_PAGE_SIZE: %w", err)
	}
	if v := env("UNREAD_ON_PUSH"); v != "" {
		if cfg.UnreadOnPush, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("config: CHATSYNC_UNREAD_ON_PUSH: %w", err)
		}
	}
	return cfg, nil
}

// DeriveWSURL maps an API base URL to its websocket endpoint:
// https://api.example.com becomes wss://api.example.com/ws.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}

func parsePositiveInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
