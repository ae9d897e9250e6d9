// Package lobby keeps the client's view of the joinable room list.
//
// Two feeds write the same snapshot: REST refreshes and game_update pushes.
// Whichever arrives last wins wholesale; partial views are never merged.
package lobby

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/socket"
)

// Lister is the REST surface the controller refreshes from
type Lister interface {
	ListGames(ctx context.Context) ([]model.Game, error)
}

// Channel is the subscription surface of the real-time connection
type Channel interface {
	On(event model.EventType, handler socket.Handler) func()
}

// Controller is the single source of truth for the room list
type Controller struct {
	api     Lister
	channel Channel
	logger  *slog.Logger

	mu     sync.Mutex
	rooms  []model.Game
	unsub  func()
	change func([]model.Game)
}

// NewController creates a lobby controller. The change callback, if not nil,
// fires with the new snapshot after every replacement.
func NewController(api Lister, channel Channel, logger *slog.Logger, change func([]model.Game)) *Controller {
	return &Controller{
		api:     api,
		channel: channel,
		logger:  logger.With(slog.String("component", "lobby")),
		change:  change,
	}
}

// Start subscribes to game_update pushes
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		return
	}
	c.unsub = c.channel.On(model.EventGameUpdate, c.handleGameUpdate)
}

// Stop unsubscribes from pushes. The last snapshot stays readable.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// Refresh fetches the room list over REST and replaces the snapshot
func (c *Controller) Refresh(ctx context.Context) error {
	games, err := c.api.ListGames(ctx)
	if err != nil {
		return err
	}
	c.replace(games)
	return nil
}

// Rooms returns the current snapshot
func (c *Controller) Rooms() []model.Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]model.Game, len(c.rooms))
	copy(rooms, c.rooms)
	return rooms
}

func (c *Controller) handleGameUpdate(data json.RawMessage) {
	evt, err := model.ParseEvent(model.EventGameUpdate, data)
	if err != nil {
		c.logger.Warn("discarding bad game_update", slog.String("error", err.Error()))
		return
	}
	update := evt.(model.GameUpdateEvent)
	c.replace(update.Games)
}

// replace swaps in a whole new snapshot, last writer by arrival wins
func (c *Controller) replace(games []model.Game) {
	c.mu.Lock()
	c.rooms = games
	change := c.change
	c.mu.Unlock()

	if change != nil {
		change(games)
	}
}
