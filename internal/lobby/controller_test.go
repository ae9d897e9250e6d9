package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/socket"
	"github.com/cardtable/cardtable-go/internal/testutil"
)

// fakeLister serves a configurable room list
type fakeLister struct {
	games []model.Game
	err   error
}

func (f *fakeLister) ListGames(ctx context.Context) ([]model.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.games, nil
}

// fakeChannel lets tests inject game_update pushes
type fakeChannel struct {
	mu       sync.Mutex
	nextID   int
	handlers map[model.EventType]map[int]socket.Handler
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[model.EventType]map[int]socket.Handler)}
}

func (f *fakeChannel) On(event model.EventType, handler socket.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]socket.Handler)
	}
	id := f.nextID
	f.nextID++
	f.handlers[event][id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *fakeChannel) push(payload any) {
	data, _ := json.Marshal(payload)
	f.mu.Lock()
	handlers := make([]socket.Handler, 0, len(f.handlers[model.EventGameUpdate]))
	for _, h := range f.handlers[model.EventGameUpdate] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

type ControllerSuite struct {
	suite.Suite
	lister     *fakeLister
	channel    *fakeChannel
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.lister = &fakeLister{}
	s.channel = newFakeChannel()
	s.controller = NewController(s.lister, s.channel, testutil.NopLogger(), nil)
	s.controller.Start()
	s.ctx = context.Background()
}

func (s *ControllerSuite) game(id, name string) model.Game {
	return model.Game{ID: model.GameID(id), Name: name, MaxPlayers: 4, Status: model.StatusWaiting}
}

func (s *ControllerSuite) roomIDs() []model.GameID {
	rooms := s.controller.Rooms()
	ids := make([]model.GameID, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	return ids
}

func (s *ControllerSuite) TestRefreshReplacesSnapshot() {
	s.lister.games = []model.Game{s.game("g-1", "Table one")}

	s.Require().NoError(s.controller.Refresh(s.ctx))
	s.Equal([]model.GameID{"g-1"}, s.roomIDs())
}

func (s *ControllerSuite) TestRefreshErrorKeepsSnapshot() {
	s.lister.games = []model.Game{s.game("g-1", "Table one")}
	s.Require().NoError(s.controller.Refresh(s.ctx))

	s.lister.err = errors.New("boom")
	s.Error(s.controller.Refresh(s.ctx))
	s.Equal([]model.GameID{"g-1"}, s.roomIDs())
}

func (s *ControllerSuite) TestPushReplacesSnapshot() {
	s.channel.push([]model.Game{s.game("g-2", "Table two")})
	s.Equal([]model.GameID{"g-2"}, s.roomIDs())
}

func (s *ControllerSuite) TestLastArrivalWinsPushAfterRefresh() {
	s.lister.games = []model.Game{s.game("g-1", "Table one")}
	s.Require().NoError(s.controller.Refresh(s.ctx))

	s.channel.push([]model.Game{s.game("g-2", "Table two"), s.game("g-3", "Table three")})

	s.Equal([]model.GameID{"g-2", "g-3"}, s.roomIDs())
}

func (s *ControllerSuite) TestLastArrivalWinsRefreshAfterPush() {
	s.channel.push([]model.Game{s.game("g-2", "Table two")})

	s.lister.games = []model.Game{s.game("g-1", "Table one")}
	s.Require().NoError(s.controller.Refresh(s.ctx))

	s.Equal([]model.GameID{"g-1"}, s.roomIDs())
}

func (s *ControllerSuite) TestBadPushKeepsSnapshot() {
	s.lister.games = []model.Game{s.game("g-1", "Table one")}
	s.Require().NoError(s.controller.Refresh(s.ctx))

	s.channel.push(map[string]string{"not": "a list"})

	s.Equal([]model.GameID{"g-1"}, s.roomIDs())
}

func (s *ControllerSuite) TestStopDropsSubscription() {
	s.controller.Stop()

	s.channel.push([]model.Game{s.game("g-2", "Table two")})
	s.Empty(s.controller.Rooms())
}

func (s *ControllerSuite) TestChangeCallbackFires() {
	var got []model.Game
	controller := NewController(s.lister, s.channel, testutil.NopLogger(), func(games []model.Game) {
		got = games
	})
	controller.Start()

	s.channel.push([]model.Game{s.game("g-9", "Table nine")})
	s.Require().Len(got, 1)
	s.Equal(model.GameID("g-9"), got[0].ID)
}
