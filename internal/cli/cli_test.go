package cli_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/cardtable/cardtable-go/internal/api"
	"github.com/cardtable/cardtable-go/internal/cli"
	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/platformtest"
	"github.com/cardtable/cardtable-go/internal/session"
	"github.com/cardtable/cardtable-go/internal/testutil"
)

// CLISuite runs whole commands in-process against the fake platform, with
// session state on a throwaway directory.
type CLISuite struct {
	suite.Suite

	server   *platformtest.Server
	stateDir string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.server = platformtest.New(testutil.NopLogger())
	s.stateDir = s.T().TempDir()
}

func (s *CLISuite) TearDownTest() {
	s.server.Close()
}

func (s *CLISuite) run(args ...string) error {
	cmd := cli.NewRootCmd()
	cmd.SetArgs(append(args,
		"--server", s.server.URL(),
		"--socket", s.server.SocketURL(),
		"--state-dir", s.stateDir,
	))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func (s *CLISuite) stateStorage() *session.FileStorage {
	return session.NewFileStorage(s.stateDir)
}

func (s *CLISuite) storedUser() model.User {
	raw, err := s.stateStorage().Get(session.KeyUser)
	s.Require().NoError(err)
	var user model.User
	s.Require().NoError(json.Unmarshal([]byte(raw), &user))
	return user
}

func (s *CLISuite) register() {
	s.Require().NoError(s.run("auth", "register", "Alice", "alice@example.com", "hunter2"))
}

func (s *CLISuite) TestRegisterPersistsSession() {
	s.register()

	tok, err := s.stateStorage().Get(session.KeyToken)
	s.Require().NoError(err)
	s.NotEmpty(tok)

	user := s.storedUser()
	s.Equal("Alice", user.Name)
	s.Equal("alice@example.com", user.Email)
	s.NotEmpty(user.ID)

	s.NoError(s.run("auth", "whoami"))
}

func (s *CLISuite) TestRegisterDerivesIdentityFromTokenWhenOmitted() {
	s.server.OmitUserInAuthResponse = true
	s.register()

	user := s.storedUser()
	s.Equal("Alice", user.Name)
	s.NotEmpty(user.ID)
}

func (s *CLISuite) TestLogoutThenLoginRoundTrip() {
	s.register()
	s.Require().NoError(s.run("auth", "logout"))

	_, err := s.stateStorage().Get(session.KeyToken)
	s.ErrorIs(err, session.ErrKeyNotFound)
	s.Error(s.run("auth", "whoami"))

	s.Require().NoError(s.run("auth", "login", "alice@example.com", "hunter2"))
	tok, err := s.stateStorage().Get(session.KeyToken)
	s.Require().NoError(err)
	s.NotEmpty(tok)
}

func (s *CLISuite) TestLoginBadPasswordFails() {
	s.register()
	s.Require().NoError(s.run("auth", "logout"))
	s.Error(s.run("auth", "login", "alice@example.com", "wrong"))
	_, err := s.stateStorage().Get(session.KeyToken)
	s.ErrorIs(err, session.ErrKeyNotFound)
}

func (s *CLISuite) TestGamesCreateListShowJoinLeave() {
	s.register()

	s.Require().NoError(s.run("games", "create", "Friday Poker", "--max-players", "6"))

	verifier := api.NewClient(s.server.URL(), api.StaticToken(s.server.MintToken(model.User{ID: "verifier"}, time.Hour)), testutil.NopLogger())
	games, err := verifier.ListGames(context.Background())
	s.Require().NoError(err)
	s.Require().Len(games, 1)
	s.Equal("Friday Poker", games[0].Name)
	s.Equal(6, games[0].MaxPlayers)

	id := string(games[0].ID)
	s.NoError(s.run("games", "list"))
	s.NoError(s.run("games", "show", id))
	s.NoError(s.run("games", "join", id))

	games, err = verifier.ListGames(context.Background())
	s.Require().NoError(err)
	s.Equal(1, games[0].PlayerCount)

	s.NoError(s.run("games", "leave", id))
	s.NoError(s.run("games", "action", id, `{"type":"draw"}`))
}

func (s *CLISuite) TestGamesActionRejectsInvalidJSON() {
	s.register()
	s.Error(s.run("games", "action", "g-1", "{not json"))
}

func (s *CLISuite) TestExpiredSessionIsPurgedOnUse() {
	// Seed a session whose credential the server will reject
	user := model.User{ID: "u-1", Name: "Alice", Email: "alice@example.com"}
	userJSON, err := json.Marshal(user)
	s.Require().NoError(err)
	st := s.stateStorage()
	s.Require().NoError(st.Set(session.KeyToken, s.server.MintToken(user, -time.Minute)))
	s.Require().NoError(st.Set(session.KeyUser, string(userJSON)))

	err = s.run("games", "list")
	s.Require().Error(err)
	s.ErrorIs(err, model.ErrSessionExpired)

	// The stale credentials are gone, like a browser clearing local storage
	_, err = st.Get(session.KeyToken)
	s.ErrorIs(err, session.ErrKeyNotFound)
	_, err = st.Get(session.KeyUser)
	s.ErrorIs(err, session.ErrKeyNotFound)
}

func (s *CLISuite) TestGamesListWithoutSessionFails() {
	err := s.run("games", "list")
	s.Require().Error(err)
	s.ErrorIs(err, model.ErrSessionExpired)
}
