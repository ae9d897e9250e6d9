package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cardtable/cardtable-go/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case model.User:
		o.printUser(v)
	case model.Game:
		o.printGame(v)
	case []model.Game:
		o.printGames(v)
	case []model.Player:
		o.printPlayers(v)
	case model.ChatMessage:
		o.printChatMessage(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printUser(u model.User) {
	fmt.Printf("User: %s (%s)\n", u.Name, u.ID)
	if u.Email != "" {
		fmt.Printf("Email: %s\n", u.Email)
	}
}

func (o *Output) printGame(g model.Game) {
	fmt.Printf("Game: %s\n", g.Name)
	fmt.Printf("ID: %s\n", g.ID)
	fmt.Printf("Status: %s\n", g.Status)
	fmt.Printf("Players: %d/%d\n", g.PlayerCount, g.MaxPlayers)
	if !g.CreatedAt.IsZero() {
		fmt.Printf("Created: %s\n", g.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func (o *Output) printGames(games []model.Game) {
	if len(games) == 0 {
		fmt.Println("No games available")
		return
	}
	fmt.Printf("Games (%d):\n", len(games))
	for _, g := range games {
		fmt.Printf("  - %s [%s] %d/%d (%s)\n", g.Name, g.Status, g.PlayerCount, g.MaxPlayers, g.ID)
	}
}

func (o *Output) printPlayers(players []model.Player) {
	fmt.Printf("Players (%d):\n", len(players))
	for _, p := range players {
		fmt.Printf("  - %s (%s)\n", p.Name, p.ID)
	}
}

func (o *Output) printChatMessage(m model.ChatMessage) {
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.SenderName, m.Text)
}
