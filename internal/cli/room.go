package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardtable/cardtable-go/internal/api"
	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/room"
	"github.com/cardtable/cardtable-go/internal/socket"
)

func newRoomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "room <game-id>",
		Short: "Enter a game room interactively",
		Long: `Join a game room over the real-time channel and stay in it.

Incoming chat, player changes and game state updates are printed as they
arrive. Lines you type are sent as chat messages. Commands:

  /players        show the current player list
  /action <json>  submit an in-game action
  /quit           leave the room

Press Ctrl+C to leave.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoom(cmd, model.GameID(args[0]))
		},
	}
}

func runRoom(cmd *cobra.Command, gameID model.GameID) error {
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
	self := store.User()

	game, err := client.GetGame(ctx, gameID)
	if api.IsAuthError(err) {
		return expireSession(ctx, store, redirected, err)
	}
	if err != nil {
		return err
	}
	out := NewOutput(cfg.Output)
	out.Print(*game)

	unsubStatus := manager.OnStatus(func(status socket.Status) {
		switch status {
		case socket.StatusReconnecting:
			fmt.Println("* connection lost, reconnecting...")
		case socket.StatusConnected:
			fmt.Println("* reconnected")
		case socket.StatusDisconnected:
			fmt.Println("* connection closed")
		}
	})
	defer unsubStatus()

	ctrl := room.NewController(gameID, manager, logger, room.Callbacks{
		PlayersChanged: func(players []model.Player) {
			names := make([]string, 0, len(players))
			for _, p := range players {
				names = append(names, p.Name)
			}
			fmt.Printf("* players: %s\n", strings.Join(names, ", "))
		},
		MessageReceived: func(msg model.ChatMessage) {
			out.Print(msg)
		},
		GameState: func(state json.RawMessage) {
			fmt.Printf("* game state: %s\n", state)
		},
		Error: func(message string) {
			fmt.Fprintf(os.Stderr, "* server error: %s\n", message)
		},
	})
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	fmt.Printf("Joined %s as %s. Type to chat, /quit to leave.\n", game.Name, self.Name)

	// Leave cleanly on interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nLeaving room")
			return nil
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done, err := handleRoomInput(ctrl, line); done || err != nil {
				return err
			}
		}
	}
}

func handleRoomInput(ctrl *room.Controller, line string) (done bool, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case line == "/quit":
		fmt.Println("Leaving room")
		return true, nil
	case line == "/players":
		NewOutput(cfg.Output).Print(ctrl.Players())
		return false, nil
	case strings.HasPrefix(line, "/action "):
		payload := strings.TrimSpace(strings.TrimPrefix(line, "/action "))
		if !json.Valid([]byte(payload)) {
			fmt.Fprintln(os.Stderr, "action must be valid JSON")
			return false, nil
		}
		if err := ctrl.SendAction(json.RawMessage(payload)); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %s\n", err)
		}
		return false, nil
	default:
		if err := ctrl.SendMessage(line); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %s\n", err)
		}
		return false, nil
	}
}
