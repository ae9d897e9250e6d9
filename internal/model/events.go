package model

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the type of event on the real-time channel
type EventType string

const (
	// Server-to-client events
	EventGameUpdate   EventType = "game_update"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventMessage      EventType = "message"
	EventGameState    EventType = "game_state"
	EventError        EventType = "error"

	// Client-to-server events
	EventJoinGame    EventType = "join_game"
	EventLeaveGame   EventType = "leave_game"
	EventSendMessage EventType = "send_message"
	EventGameAction  EventType = "game_action"
)

// Event is a decoded server push. Concrete types carry the payload for each
// known event name; unrecognized names decode to UnknownEvent.
type Event interface {
	Type() EventType
}

// GameUpdateEvent replaces the lobby's room list wholesale
type GameUpdateEvent struct {
	Games []Game
}

func (GameUpdateEvent) Type() EventType { return EventGameUpdate }

// PlayerJoinedEvent announces a player entering the current room
type PlayerJoinedEvent struct {
	Player Player
}

func (PlayerJoinedEvent) Type() EventType { return EventPlayerJoined }

// PlayerLeftEvent announces a player leaving the current room
type PlayerLeftEvent struct {
	Player Player
}

func (PlayerLeftEvent) Type() EventType { return EventPlayerLeft }

// MessageEvent carries one chat message
type MessageEvent struct {
	Message ChatMessage
}

func (MessageEvent) Type() EventType { return EventMessage }

// GameStateEvent carries the opaque play-area state. The table itself is not
// implemented yet, so the payload stays raw for a future game view.
type GameStateEvent struct {
	State json.RawMessage
}

func (GameStateEvent) Type() EventType { return EventGameState }

// ErrorEvent is a server-reported failure on the channel
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) Type() EventType { return EventError }

// UnknownEvent preserves pushes with names this client does not recognize
type UnknownEvent struct {
	Name EventType
	Data json.RawMessage
}

func (e UnknownEvent) Type() EventType { return e.Name }

// ParseEvent decodes a named server push into its concrete event type.
// A payload that fails to decode for a known name is an error; an
// unrecognized name is not, and falls back to UnknownEvent.
func ParseEvent(name EventType, data json.RawMessage) (Event, error) {
	switch name {
	case EventGameUpdate:
		var games []Game
		if err := json.Unmarshal(data, &games); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
		return GameUpdateEvent{Games: games}, nil
	case EventPlayerJoined:
		var player Player
		if err := json.Unmarshal(data, &player); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
		return PlayerJoinedEvent{Player: player}, nil
	case EventPlayerLeft:
		var player Player
		if err := json.Unmarshal(data, &player); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
		return PlayerLeftEvent{Player: player}, nil
	case EventMessage:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
		return MessageEvent{Message: msg}, nil
	case EventGameState:
		return GameStateEvent{State: data}, nil
	case EventError:
		var evt ErrorEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
		return evt, nil
	default:
		return UnknownEvent{Name: name, Data: data}, nil
	}
}
