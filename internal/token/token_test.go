package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/cardtable/cardtable-go/internal/model"
)

type TokenSuite struct {
	suite.Suite
	now time.Time
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}

func (s *TokenSuite) SetupTest() {
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// mint signs a credential over the given claims. The signing key is
// irrelevant to the codec, which never verifies.
func (s *TokenSuite) mint(claims jwt.MapClaims) string {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	s.Require().NoError(err)
	return raw
}

// Decode tests

func (s *TokenSuite) TestDecodeWellFormedCredential() {
	raw := s.mint(jwt.MapClaims{
		"sub":   "u-1",
		"name":  "Alice",
		"email": "alice@example.com",
		"exp":   s.now.Add(time.Hour).Unix(),
	})

	claims, err := Decode(raw)
	s.Require().NoError(err)

	s.Equal("u-1", claims.Subject)
	s.Equal("Alice", claims.Name)
	s.Equal("alice@example.com", claims.Email)
	s.Equal(s.now.Add(time.Hour), claims.ExpiresAt.UTC())
}

func (s *TokenSuite) TestDecodeSubjectFallsBackToUserIDClaim() {
	raw := s.mint(jwt.MapClaims{"userId": "u-2"})

	claims, err := Decode(raw)
	s.Require().NoError(err)
	s.Equal("u-2", claims.Subject)
}

func (s *TokenSuite) TestDecodeSubjectFallsBackToIDClaim() {
	raw := s.mint(jwt.MapClaims{"id": "u-3"})

	claims, err := Decode(raw)
	s.Require().NoError(err)
	s.Equal("u-3", claims.Subject)
}

func (s *TokenSuite) TestDecodeMissingSegmentFails() {
	claims, err := Decode("onlyonesegment")
	s.ErrorIs(err, ErrMalformed)
	s.Nil(claims)
}

func (s *TokenSuite) TestDecodeTwoSegmentsFails() {
	claims, err := Decode("aGVhZGVy.cGF5bG9hZA")
	s.ErrorIs(err, ErrMalformed)
	s.Nil(claims)
}

func (s *TokenSuite) TestDecodeInvalidEncodingFails() {
	claims, err := Decode("!!!.???.###")
	s.ErrorIs(err, ErrMalformed)
	s.Nil(claims)
}

func (s *TokenSuite) TestDecodeEmptyStringFails() {
	claims, err := Decode("")
	s.ErrorIs(err, ErrMalformed)
	s.Nil(claims)
}

// Expired tests

func (s *TokenSuite) TestFutureExpiryIsNotExpired() {
	raw := s.mint(jwt.MapClaims{"sub": "u-1", "exp": s.now.Add(time.Hour).Unix()})
	s.False(Expired(raw, s.now))
}

func (s *TokenSuite) TestPastExpiryIsExpired() {
	raw := s.mint(jwt.MapClaims{"sub": "u-1", "exp": s.now.Add(-time.Hour).Unix()})
	s.True(Expired(raw, s.now))
}

func (s *TokenSuite) TestMissingExpiryIsExpired() {
	raw := s.mint(jwt.MapClaims{"sub": "u-1"})
	s.True(Expired(raw, s.now))
}

func (s *TokenSuite) TestMalformedCredentialIsExpired() {
	s.True(Expired("not-a-credential", s.now))
}

// User derivation tests

func (s *TokenSuite) TestUserFromFullClaims() {
	claims := &Claims{Subject: "u-1", Name: "Alice", Email: "alice@example.com"}

	user, err := claims.User()
	s.Require().NoError(err)
	s.Equal(model.User{ID: "u-1", Name: "Alice", Email: "alice@example.com"}, user)
}

func (s *TokenSuite) TestUserNameFallsBackToEmailLocalPart() {
	claims := &Claims{Subject: "u-1", Email: "bob@example.com"}

	user, err := claims.User()
	s.Require().NoError(err)
	s.Equal("bob", user.Name)
}

func (s *TokenSuite) TestUserWithoutSubjectFails() {
	claims := &Claims{Name: "Nobody"}

	_, err := claims.User()
	s.ErrorIs(err, model.ErrNoIdentity)
}
