package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardtable/cardtable-go/internal/api"
	"github.com/cardtable/cardtable-go/internal/lobby"
	"github.com/cardtable/cardtable-go/internal/model"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the lobby for live game list updates",
		Long: `Connect to the real-time channel and print the game list every time
it changes on the server.

Press Ctrl+C to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			redirected := make(chan struct{})
			store, manager := newSessionStore(func() { close(redirected) })
			defer manager.Disconnect()

			if err := store.Hydrate(ctx); err != nil {
				return err
			}
			if !store.Authenticated() {
				return model.ErrNotLoggedIn
			}

			out := NewOutput(cfg.Output)
			ctrl := lobby.NewController(client, manager, logger, func(games []model.Game) {
				out.Print(games)
			})
			ctrl.Start()
			defer ctrl.Stop()

			if err := ctrl.Refresh(ctx); err != nil {
				if api.IsAuthError(err) {
					return expireSession(ctx, store, redirected, err)
				}
				return err
			}
			out.Print(ctrl.Rooms())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-sigCh:
				fmt.Println("\nDisconnected")
			case <-ctx.Done():
			}
			return nil
		},
	}
}
