// Package room runs the client side of one game room: implicit membership
// via join/leave notifications, the converging player list, and the
// append-only chat transcript.
//
// Membership is fire-and-forget. If this client dies without sending leave,
// the platform's own disconnect detection evicts it; nothing here waits for
// an acknowledgment.
package room

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/socket"
)

// Channel is the slice of the real-time connection a room needs
type Channel interface {
	Emit(event model.EventType, payload any) error
	On(event model.EventType, handler socket.Handler) func()
}

// Callbacks observe room activity. Nil callbacks are skipped.
type Callbacks struct {
	PlayersChanged  func(players []model.Player)
	MessageReceived func(msg model.ChatMessage)
	GameState       func(state json.RawMessage)
	Error           func(message string)
}

// Controller holds the short-lived state of one room view
type Controller struct {
	gameID  model.GameID
	channel Channel
	logger  *slog.Logger
	cb      Callbacks

	mu       sync.Mutex
	players  []model.Player
	messages []model.ChatMessage
	unsubs   []func()
}

// NewController creates a controller for one room
func NewController(gameID model.GameID, channel Channel, logger *slog.Logger, cb Callbacks) *Controller {
	return &Controller{
		gameID:  gameID,
		channel: channel,
		logger:  logger.With(slog.String("component", "room"), slog.String("game_id", string(gameID))),
		cb:      cb,
	}
}

// Start announces the join and subscribes to room-scoped events
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unsubs) > 0 {
		return nil
	}

	// Subscribe before announcing so the join's own broadcast is not missed
	c.unsubs = []func(){
		c.channel.On(model.EventPlayerJoined, c.handlePlayerJoined),
		c.channel.On(model.EventPlayerLeft, c.handlePlayerLeft),
		c.channel.On(model.EventMessage, c.handleMessage),
		c.channel.On(model.EventGameState, c.handleGameState),
		c.channel.On(model.EventError, c.handleError),
	}

	if err := c.channel.Emit(model.EventJoinGame, c.gameID); err != nil {
		for _, unsub := range c.unsubs {
			unsub()
		}
		c.unsubs = nil
		return err
	}
	return nil
}

// Stop announces the leave and drops all subscriptions. The leave is
// best-effort; a dead connection is not an error worth surfacing here.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unsubs) == 0 {
		return
	}

	if err := c.channel.Emit(model.EventLeaveGame, c.gameID); err != nil {
		c.logger.Warn("leave notification failed", slog.String("error", err.Error()))
	}
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// SendMessage emits one chat message. The transcript only grows when the
// server echoes it back.
func (c *Controller) SendMessage(text string) error {
	return c.channel.Emit(model.EventSendMessage, chatPayload{
		GameID:  c.gameID,
		Message: text,
	})
}

// SendAction submits an opaque in-game action over the channel
func (c *Controller) SendAction(action json.RawMessage) error {
	return c.channel.Emit(model.EventGameAction, actionPayload{
		GameID: c.gameID,
		Action: action,
	})
}

// Players returns the current membership snapshot
func (c *Controller) Players() []model.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	players := make([]model.Player, len(c.players))
	copy(players, c.players)
	return players
}

// Messages returns the transcript in arrival order
func (c *Controller) Messages() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]model.ChatMessage, len(c.messages))
	copy(messages, c.messages)
	return messages
}

type chatPayload struct {
	GameID  model.GameID `json:"gameId"`
	Message string       `json:"message"`
}

type actionPayload struct {
	GameID model.GameID    `json:"gameId"`
	Action json.RawMessage `json:"action"`
}

func (c *Controller) handlePlayerJoined(data json.RawMessage) {
	evt, err := model.ParseEvent(model.EventPlayerJoined, data)
	if err != nil {
		c.logger.Warn("discarding bad player_joined", slog.String("error", err.Error()))
		return
	}
	player := evt.(model.PlayerJoinedEvent).Player

	c.mu.Lock()
	present := false
	for _, p := range c.players {
		if p.ID == player.ID {
			present = true
			break
		}
	}
	if !present {
		c.players = append(c.players, player)
	}
	players := make([]model.Player, len(c.players))
	copy(players, c.players)
	c.mu.Unlock()

	if !present && c.cb.PlayersChanged != nil {
		c.cb.PlayersChanged(players)
	}
}

func (c *Controller) handlePlayerLeft(data json.RawMessage) {
	evt, err := model.ParseEvent(model.EventPlayerLeft, data)
	if err != nil {
		c.logger.Warn("discarding bad player_left", slog.String("error", err.Error()))
		return
	}
	player := evt.(model.PlayerLeftEvent).Player

	c.mu.Lock()
	removed := false
	kept := c.players[:0]
	for _, p := range c.players {
		if p.ID == player.ID {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	c.players = kept
	players := make([]model.Player, len(c.players))
	copy(players, c.players)
	c.mu.Unlock()

	if removed && c.cb.PlayersChanged != nil {
		c.cb.PlayersChanged(players)
	}
}

func (c *Controller) handleMessage(data json.RawMessage) {
	evt, err := model.ParseEvent(model.EventMessage, data)
	if err != nil {
		c.logger.Warn("discarding bad message", slog.String("error", err.Error()))
		return
	}
	msg := evt.(model.MessageEvent).Message

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if c.cb.MessageReceived != nil {
		c.cb.MessageReceived(msg)
	}
}

func (c *Controller) handleGameState(data json.RawMessage) {
	if c.cb.GameState != nil {
		c.cb.GameState(data)
	}
}

func (c *Controller) handleError(data json.RawMessage) {
	evt, err := model.ParseEvent(model.EventError, data)
	if err != nil {
		c.logger.Warn("discarding bad error event", slog.String("error", err.Error()))
		return
	}
	message := evt.(model.ErrorEvent).Message

	c.logger.Warn("server error event", slog.String("message", message))
	if c.cb.Error != nil {
		c.cb.Error(message)
	}
}
