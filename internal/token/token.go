// Package token decodes the claims embedded in a bearer credential.
//
// Decoding is unverified: no signature check is performed, so claims are
// good for UI convenience only, never for trust decisions. Authorization is
// always enforced server-side.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cardtable/cardtable-go/internal/model"
)

// ErrMalformed indicates the credential is not a decodable compact JWS
var ErrMalformed = errors.New("malformed credential")

// Claims is the decoded claim set of a credential
type Claims struct {
	Subject   string
	Name      string
	Email     string
	ExpiresAt time.Time // zero when the credential carries no expiry
}

// Decode parses the claims of a compact JWS without verifying its signature.
// Malformed input (wrong segment count, bad encoding, bad structure) is a
// returned error, never a panic.
func Decode(raw string) (*Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	claims := &Claims{
		Subject: firstString(mc, "sub", "userId", "id"),
		Name:    firstString(mc, "name", "username"),
		Email:   firstString(mc, "email"),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// Expired reports whether the credential's expiry claim is in the past.
// A credential that cannot be decoded, or that carries no expiry claim,
// counts as expired.
func Expired(raw string, now time.Time) bool {
	claims, err := Decode(raw)
	if err != nil {
		return true
	}
	if claims.ExpiresAt.IsZero() {
		return true
	}
	return claims.ExpiresAt.Before(now)
}

// User derives a display identity from the claim set. The name falls back to
// the email's local part when the credential carries no name claim. Returns
// ErrNoIdentity when not even a subject is present.
func (c *Claims) User() (model.User, error) {
	if c.Subject == "" {
		return model.User{}, model.ErrNoIdentity
	}

	name := c.Name
	if name == "" && c.Email != "" {
		name = strings.SplitN(c.Email, "@", 2)[0]
	}

	return model.User{
		ID:    model.UserID(c.Subject),
		Name:  name,
		Email: c.Email,
	}, nil
}

func firstString(mc jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := mc[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
