// Package api is the REST client for the card-game platform. It is
// stateless: every call attaches the current bearer credential and a JSON
// content type, and a non-2xx response becomes a single typed error carrying
// the server's message. No retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cardtable/cardtable-go/internal/model"
)

// TokenSource supplies the current bearer credential; empty means the
// request goes out unauthenticated (and is still sent)
type TokenSource func() string

// StaticToken is a TokenSource over a fixed credential
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// APIError is a non-2xx response from the platform
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err is a 401 authentication failure
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client is the HTTP client for the platform REST API
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an API client against baseURL
func NewClient(baseURL string, token TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "api")),
	}
}

// AuthResponse is the result of a credential exchange
type AuthResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         *model.User `json:"user,omitempty"`
}

// Register creates a new account and returns its credentials
func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var result AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login exchanges credentials for a token pair
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var result AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListGames returns all joinable game rooms
func (c *Client) ListGames(ctx context.Context) ([]model.Game, error) {
	var games []model.Game
	if err := c.do(ctx, http.MethodGet, "/api/games", nil, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// DefaultMaxPlayers is used when a room is created without a capacity
const DefaultMaxPlayers = 4

// CreateGame creates a new room. maxPlayers <= 0 uses DefaultMaxPlayers.
func (c *Client) CreateGame(ctx context.Context, name string, maxPlayers int) (*model.Game, error) {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	body := map[string]any{"name": name, "maxPlayers": maxPlayers}
	var game model.Game
	if err := c.do(ctx, http.MethodPost, "/api/games", body, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// GetGame fetches one room by id
func (c *Client) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	var game model.Game
	if err := c.do(ctx, http.MethodGet, "/api/games/"+string(id), nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// JoinGame registers the caller as a member of the room
func (c *Client) JoinGame(ctx context.Context, id model.GameID) error {
	body := map[string]string{"gameId": string(id)}
	return c.do(ctx, http.MethodPost, "/api/games/join", body, nil)
}

// LeaveGame removes the caller from the room
func (c *Client) LeaveGame(ctx context.Context, id model.GameID) error {
	return c.do(ctx, http.MethodPost, "/api/games/leave/"+string(id), nil, nil)
}

// SendAction submits an opaque in-game action
func (c *Client) SendAction(ctx context.Context, id model.GameID, action json.RawMessage) error {
	body := map[string]any{"gameId": string(id), "action": action}
	return c.do(ctx, http.MethodPost, "/api/games/action", body, nil)
}

// errorBody is the shape of a server-reported failure
type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("http request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := "request failed"
		var errResp errorBody
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			message = errResp.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
