package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardtable/cardtable-go/internal/api"
	"github.com/cardtable/cardtable-go/internal/model"
)

func newGamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "Game room commands",
	}

	cmd.AddCommand(newGamesListCmd())
	cmd.AddCommand(newGamesCreateCmd())
	cmd.AddCommand(newGamesShowCmd())
	cmd.AddCommand(newGamesJoinCmd())
	cmd.AddCommand(newGamesLeaveCmd())
	cmd.AddCommand(newGamesActionCmd())

	return cmd
}

// sessionError maps a 401 to a consistent "log in again" failure. The purge
// goes through the session store's auth-failure flow; one-shot commands hold
// no live store, so one is wired up over the same storage here.
func sessionError(ctx context.Context, err error) error {
	if err == nil || !api.IsAuthError(err) {
		return err
	}
	store, manager := newSessionStore(nil)
	defer manager.Disconnect()
	store.HandleAuthFailure(ctx, err.Error())
	return fmt.Errorf("%w: please log in again", model.ErrSessionExpired)
}

func newGamesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available game rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			games, err := client.ListGames(cmd.Context())
			if err != nil {
				return sessionError(cmd.Context(), err)
			}
			NewOutput(cfg.Output).Print(games)
			return nil
		},
	}
}

func newGamesCreateCmd() *cobra.Command {
	var maxPlayers int

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new game room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := client.CreateGame(cmd.Context(), args[0], maxPlayers)
			if err != nil {
				return sessionError(cmd.Context(), err)
			}
			NewOutput(cfg.Output).Print(*game)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxPlayers, "max-players", api.DefaultMaxPlayers, "Maximum number of players")

	return cmd
}

func newGamesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <game-id>",
		Short: "Show one game room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := client.GetGame(cmd.Context(), model.GameID(args[0]))
			if err != nil {
				return sessionError(cmd.Context(), err)
			}
			NewOutput(cfg.Output).Print(*game)
			return nil
		},
	}
}

func newGamesJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <game-id>",
		Short: "Join a game room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.JoinGame(cmd.Context(), model.GameID(args[0])); err != nil {
				return sessionError(cmd.Context(), err)
			}
			NewOutput(cfg.Output).PrintMessage("Joined game " + args[0])
			return nil
		},
	}
}

func newGamesLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <game-id>",
		Short: "Leave a game room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.LeaveGame(cmd.Context(), model.GameID(args[0])); err != nil {
				return sessionError(cmd.Context(), err)
			}
			NewOutput(cfg.Output).PrintMessage("Left game " + args[0])
			return nil
		},
	}
}

func newGamesActionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "action <game-id> <json>",
		Short: "Submit an in-game action as a JSON document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("action must be valid JSON")
			}
			if err := client.SendAction(cmd.Context(), model.GameID(args[0]), json.RawMessage(args[1])); err != nil {
				return sessionError(cmd.Context(), err)
			}
			NewOutput(cfg.Output).PrintMessage("Action submitted")
			return nil
		},
	}
}
