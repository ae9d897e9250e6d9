// Package session owns the client-local record of the authenticated
// identity: it persists the credential to durable storage, mirrors it in
// memory, and drives the real-time transport's connect/disconnect lifecycle.
// All mutation goes through Login, Logout and Hydrate.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/socket"
)

// ErrConnectFailed marks a transport dial failure during Login or Hydrate.
// The persisted credentials are intact when this is returned.
var ErrConnectFailed = errors.New("real-time connection failed")

// Connector is the slice of the transport lifecycle the store drives.
// The store is the sole opener and closer of the connection; pages only
// attach and detach listeners.
type Connector interface {
	Connect(ctx context.Context, credential string) (*socket.Conn, error)
	Disconnect()
}

// Credentials is the result of a credential exchange with the auth service
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         model.User
}

// Config holds configuration for the session store
type Config struct {
	// RedirectDelay is how long an authentication failure message stays on
	// screen before the redirect hook fires
	RedirectDelay time.Duration
	// OnRedirect is invoked after RedirectDelay when a 401 is handled
	OnRedirect func()
}

// DefaultConfig returns default session store configuration
func DefaultConfig() Config {
	return Config{
		RedirectDelay: 2 * time.Second,
	}
}

// Store is the single process-wide session state holder
type Store struct {
	storage Storage
	conn    Connector
	logger  *slog.Logger
	cfg     Config

	mu            sync.Mutex
	user          model.User
	token         string
	authenticated bool
}

// New creates a session store over the given storage and transport
func New(storage Storage, conn Connector, logger *slog.Logger, cfg Config) *Store {
	if cfg.RedirectDelay == 0 {
		cfg.RedirectDelay = DefaultConfig().RedirectDelay
	}
	return &Store{
		storage: storage,
		conn:    conn,
		logger:  logger.With(slog.String("component", "session")),
		cfg:     cfg,
	}
}

// Login persists the credentials, opens the real-time connection and
// transitions to authenticated. Storage is written before the transport is
// touched; a storage failure aborts the login with nothing half-applied.
// Re-login with the same credential is equivalent to a fresh connect.
func (s *Store) Login(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userJSON, err := json.Marshal(creds.User)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	if err := s.storage.Set(KeyToken, creds.AccessToken); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	if err := s.storage.Set(KeyUser, string(userJSON)); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	if creds.RefreshToken != "" {
		if err := s.storage.Set(KeyRefreshToken, creds.RefreshToken); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	}

	// Credentials stay persisted on a connect failure so the next hydrate
	// can retry; in-memory state remains unauthenticated, consistent with
	// the closed transport.
	if _, err := s.conn.Connect(ctx, creds.AccessToken); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.user = creds.User
	s.token = creds.AccessToken
	s.authenticated = true

	s.logger.Info("logged in", slog.String("user_id", string(creds.User.ID)))
	return nil
}

// Logout clears all persisted session keys, closes the real-time connection
// and transitions to unauthenticated. Safe to call when already logged out.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.storage.Delete(KeyToken, KeyUser, KeyRefreshToken)
	s.conn.Disconnect()

	s.user = model.User{}
	s.token = ""
	s.authenticated = false

	if err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Hydrate restores session state from durable storage at process start.
// Corrupted keys are purged and the session stays unauthenticated; when
// storage is unavailable the call is a no-op.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.storage.Available() {
		return nil
	}

	tok, err := s.storage.Get(KeyToken)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("read credential: %w", err)
	}

	userJSON, err := s.storage.Get(KeyUser)
	if err != nil {
		s.purgeLocked("identity missing")
		return nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		s.purgeLocked("identity unparseable")
		return nil
	}

	if _, err := s.conn.Connect(ctx, tok); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.user = user
	s.token = tok
	s.authenticated = true

	s.logger.Info("session restored", slog.String("user_id", string(user.ID)))
	return nil
}

// HandleAuthFailure reacts to a server-side 401: the persisted session is
// cleared and the transport closed immediately, and the redirect hook fires
// after the configured delay so the user can read the message.
func (s *Store) HandleAuthFailure(ctx context.Context, reason string) {
	s.mu.Lock()
	if err := s.storage.Delete(KeyToken, KeyUser, KeyRefreshToken); err != nil {
		s.logger.Warn("clear session storage", slog.String("error", err.Error()))
	}
	s.conn.Disconnect()
	s.user = model.User{}
	s.token = ""
	s.authenticated = false
	hook := s.cfg.OnRedirect
	delay := s.cfg.RedirectDelay
	s.mu.Unlock()

	s.logger.Warn("authentication failure", slog.String("reason", reason))
	if hook != nil {
		time.AfterFunc(delay, hook)
	}
}

// Authenticated reports whether a session is active
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// User returns the authenticated identity, zero when logged out
func (s *Store) User() model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Token returns the active credential, empty when logged out
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// purgeLocked drops all session keys after detecting corruption.
// Caller holds s.mu.
func (s *Store) purgeLocked(reason string) {
	s.logger.Warn("purging corrupted session state", slog.String("reason", reason))
	if err := s.storage.Delete(KeyToken, KeyUser, KeyRefreshToken); err != nil {
		s.logger.Warn("clear session storage", slog.String("error", err.Error()))
	}
}
