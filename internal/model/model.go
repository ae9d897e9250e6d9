package model

import "time"

// UserID uniquely identifies a user across the platform
type UserID string

// GameID uniquely identifies a game room
type GameID string

// User is the authenticated identity, derived from the auth response body
// or decoded from the credential when the body omits it
type User struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GameStatus is the lifecycle state of a game room
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusPlaying  GameStatus = "playing"
	StatusFinished GameStatus = "finished"
)

// Game is a joinable room. The server owns it; the client only holds
// read-only snapshots refreshed by polling or push.
type Game struct {
	ID          GameID     `json:"id"`
	Name        string     `json:"name"`
	PlayerCount int        `json:"playerCount"`
	MaxPlayers  int        `json:"maxPlayers"`
	Status      GameStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Player is a room membership record, added and removed by push events only
type Player struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is one line of room chat, append-only once received
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   UserID    `json:"playerId"`
	SenderName string    `json:"playerName"`
	Text       string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
