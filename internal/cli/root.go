// Package cli is the cardtable command line surface: auth, lobby and game
// commands over the platform REST API, plus interactive room sessions over
// the real-time channel.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardtable/cardtable-go/internal/api"
	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/session"
	"github.com/cardtable/cardtable-go/internal/socket"
)

var (
	cfg     *Config
	logger  *slog.Logger
	storage session.Storage
	client  *api.Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "cardtable",
		Short: "CLI client for the cardtable platform",
		Long: `cardtable is a client for the cardtable real-time card game platform.

It covers account management, listing and joining game rooms, and interactive
room sessions with live player updates and chat.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			storage = session.NewFileStorage(cfg.StateDir)
			client = api.NewClient(cfg.ServerURL, storedToken, logger)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: CARDTABLE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.SocketURL, "socket", cfg.SocketURL, "Real-time channel URL (env: CARDTABLE_SOCKET)")
	rootCmd.PersistentFlags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "Directory for stored credentials (env: CARDTABLE_STATE_DIR)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newGamesCmd())
	rootCmd.AddCommand(newRoomCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

// storedToken reads the persisted credential for outgoing API requests.
// Missing or unreadable storage means the request goes out unauthenticated.
func storedToken() string {
	token, err := storage.Get(session.KeyToken)
	if err != nil {
		return ""
	}
	return token
}

// newSessionStore wires a session store over the configured storage and a
// fresh channel manager. onRedirect, when set, fires after the store handles
// an authentication failure.
func newSessionStore(onRedirect func()) (*session.Store, *socket.Manager) {
	manager := socket.NewManager(socket.DefaultConfig(cfg.ResolvedSocketURL()), logger)
	storeCfg := session.DefaultConfig()
	storeCfg.OnRedirect = onRedirect
	store := session.New(storage, manager, logger, storeCfg)
	return store, manager
}

// expireSession runs a live store's auth-failure flow for a REST 401: the
// stored session is purged immediately and the expiry message stays on
// screen until the store's redirect hook fires
func expireSession(ctx context.Context, store *session.Store, redirected <-chan struct{}, cause error) error {
	store.HandleAuthFailure(ctx, cause.Error())
	fmt.Fprintln(os.Stderr, "Session expired, please log in again")
	select {
	case <-redirected:
	case <-ctx.Done():
	}
	return model.ErrSessionExpired
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
