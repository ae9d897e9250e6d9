package model

import "errors"

// Common errors used across the client
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrNoIdentity     = errors.New("no identity derivable from credential")
	ErrNotConnected   = errors.New("real-time channel is not connected")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired")
)
