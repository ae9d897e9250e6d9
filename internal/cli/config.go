package cli

import (
	"os"
	"strings"

	"github.com/cardtable/cardtable-go/internal/session"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	SocketURL string
	StateDir  string
	Output    string
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("CARDTABLE_SERVER", "http://localhost:3001"),
		SocketURL: os.Getenv("CARDTABLE_SOCKET"),
		StateDir:  getEnvOrDefault("CARDTABLE_STATE_DIR", session.DefaultStateDir()),
		Output:    "text",
		Verbose:   false,
	}
}

// ResolvedSocketURL derives the channel endpoint from the server URL when no
// explicit socket URL is configured
func (c *Config) ResolvedSocketURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	base := strings.TrimSuffix(c.ServerURL, "/")
	if strings.HasPrefix(base, "https") {
		return "wss" + strings.TrimPrefix(base, "https") + "/ws"
	}
	return "ws" + strings.TrimPrefix(base, "http") + "/ws"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
