package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/protomem/chatik/client"
	"github.com/protomem/chatik/internal/api"
	"github.com/protomem/chatik/internal/config"
	"github.com/protomem/chatik/internal/credentials"
	"github.com/protomem/chatik/internal/db"
	"github.com/protomem/chatik/internal/logging"
	"github.com/protomem/chatik/internal/state"
	"github.com/protomem/chatik/internal/tailnet"
)

var (
	// Global flags
	configFile string
	verbose    bool
	ephemeral  bool
)

var rootCmd = &cobra.Command{
	Use:   "chatik",
	Short: "chatik - terminal client for the chatik chat service",
	Long: `chatik talks to a chatik API: log in, browse channels, post messages and
follow the live event stream.

Configuration comes from chatik.yaml, a .env file and CHATIK_* environment
variables (for example CHATIK_API_URL).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./chatik.yaml or ~/.config/chatik/chatik.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep credentials in memory only")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, statusCmd)
	rootCmd.AddCommand(channelsCmd, messagesCmd, transportCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *db.ClientDB
	node   *tailnet.Node
	creds  credentials.Store
	client *client.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		cfg.Credentials = config.CredentialsMemory
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	a := &app{
		cfg:    cfg,
		logger: logging.New(cfg.IsDevelopment(), level),
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	switch cfg.Credentials {
	case config.CredentialsKeyring:
		a.creds = credentials.NewKeyringStore(credentials.KeyringService, a.logger)
	case config.CredentialsMemory:
		a.creds = credentials.NewMemoryStore()
	default:
		a.db, err = db.NewClientDB(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.creds = credentials.NewDBStore(a.db, a.logger)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	var dialer *websocket.Dialer
	if cfg.TailnetHostname != "" {
		a.node, err = tailnet.Start(ctx, cfg.TailnetHostname, cfg.DataDir, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		httpClient = a.node.HTTPClient(cfg.RequestTimeout)
		dialer = a.node.Dialer()
	}

	store := state.New(a.creds, a.logger)
	apiClient := api.NewClient(cfg.APIURL, store, api.Options{
		HTTPClient: httpClient,
		CacheTTL:   cfg.QueryCacheTTL,
		Logger:     a.logger,
	})
	a.client = client.New(apiClient, store, a.creds, client.Options{
		StreamBase:           cfg.StreamBase(),
		HTTPClient:           httpClient,
		Dialer:               dialer,
		Reconnect:            cfg.Reconnect,
		MaxReconnectInterval: cfg.ReconnectMaxInterval,
		Logger:               a.logger,
	})
	return a, nil
}

// requireSession fails unless a stored, unexpired session exists.
func (a *app) requireSession() error {
	if !a.client.Resume() {
		return fmt.Errorf("not logged in: run 'chatik login' first")
	}
	return nil
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Disconnect()
	}
	if a.node != nil {
		a.node.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// withApp wraps a command body with app setup and teardown.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}
