package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/naveenspark/chatsync/internal/config"
	"github.com/naveenspark/chatsync/internal/logger"
	"github.com/naveenspark/chatsync/internal/tui"
	"github.com/naveenspark/chatsync/pkg/chat"
	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
	"github.com/naveenspark/chatsync/pkg/socket"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "version", "-v":
			fmt.Println("chatsync " + version)
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "login":
			return runLogin(os.Args[2:], os.Stdin)
		case "logout":
			return runLogout()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if hint := setupHint(cfg); hint != "" {
		printHint(hint)
		return nil
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogSink)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, reg, log)
		defer stop()
	}

	store := newStore(cfg, log, reg)
	defer store.Close()

	log.Info("starting", zap.String("version", version), zap.String("api", cfg.APIURL))
	p := tea.NewProgram(tui.NewApp(store, version), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	store.DisconnectSocket()
	return nil
}

// newStore wires the REST client and the push connection into a store.
func newStore(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) *chat.Store {
	api := client.New(cfg.APIURL, cfg.Token)
	conn := socket.New(cfg.WSURL, cfg.Token, socket.WithLogger(log.Named("socket")))

	opts := []chat.Option{
		chat.WithLogger(log.Named("store")),
		chat.WithRegisterer(reg),
		chat.WithRequestTimeout(cfg.RequestTimeout),
		chat.WithTypingTTL(cfg.TypingTTL),
		chat.WithPageSize(cfg.PageSize),
		chat.WithUnreadOnPush(cfg.UnreadOnPush),
	}
	if cfg.UserID != "" {
		opts = append(opts, chat.WithSelf(domain.ChatUser{ID: cfg.UserID, Name: cfg.UserName}))
	}
	return chat.New(api, conn, opts...)
}

// setupHint names what is missing before the TUI can start, or "".
// Without a user id own messages and reactions cannot be recognised.
func setupHint(cfg *config.Config) string {
	switch {
	case cfg.Token == "":
		return tokenHint
	case cfg.UserID == "":
		return userHint
	}
	return ""
}

// serveMetrics exposes reg on addr/metrics until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("metrics_listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}
}

// runLogin stores a token, given as the only argument or read from stdin.
func runLogin(args []string, stdin io.Reader) error {
	var tok string
	if len(args) > 0 {
		tok = args[0]
	} else {
		fmt.Print("Paste your chatsync token: ")
		data, err := io.ReadAll(io.LimitReader(stdin, 4096))
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		tok = string(data)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return errors.New("empty token")
	}

	tokPath, err := config.TokenFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tokPath), 0o700); err != nil {
		return fmt.Errorf("create ~/.chatsync dir: %w", err)
	}
	if err := os.WriteFile(tokPath, []byte(tok), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Println("Token saved.")
	return nil
}

func runLogout() error {
	tokPath, err := config.TokenFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(tokPath); os.IsNotExist(err) {
		fmt.Println("Already logged out.")
		return nil
	}
	if err := os.Remove(tokPath); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}
