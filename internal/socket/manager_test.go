package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/testutil"
)

// wsServer is a minimal server side of the channel: it records handshake
// auth, exposes received frames, and lets tests push frames and drop
// connections.
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	auth  []string

	received chan Frame
}

func newWSServer() *wsServer {
	s := &wsServer{received: make(chan Frame, 64)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		s.mu.Unlock()

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.mu.Unlock()

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var frame Frame
			if json.Unmarshal(msg, &frame) == nil {
				s.received <- frame
			}
		}
	}))
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// push writes a frame to the most recently accepted connection
func (s *wsServer) push(event model.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	s.mu.Lock()
	ws := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, msg)
}

// dropAll closes every accepted connection without a close handshake
func (s *wsServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		_ = ws.Close()
	}
	s.conns = nil
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsServer) close() {
	s.dropAll()
	s.srv.Close()
}

type ManagerSuite struct {
	suite.Suite
	server  *wsServer
	manager *Manager
	ctx     context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.server = newWSServer()
	s.manager = NewManager(Config{
		URL:               s.server.url(),
		ReconnectMin:      10 * time.Millisecond,
		ReconnectMax:      50 * time.Millisecond,
		ReconnectAttempts: 3,
	}, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ManagerSuite) TearDownTest() {
	s.manager.Disconnect()
	s.server.close()
}

func (s *ManagerSuite) TestConnectTwiceReturnsSameHandle() {
	first, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	second, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	s.Same(first, second)
	s.Eventually(func() bool { return s.server.connCount() == 1 }, time.Second, 10*time.Millisecond)
}

func (s *ManagerSuite) TestHandshakeCarriesBearerCredential() {
	_, err := s.manager.Connect(s.ctx, "my-token")
	s.Require().NoError(err)

	s.server.mu.Lock()
	auth := s.server.auth[0]
	s.server.mu.Unlock()
	s.Equal("Bearer my-token", auth)
}

func (s *ManagerSuite) TestEmitSendsNamedFrame() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	err = s.manager.Emit(model.EventJoinGame, "game-1")
	s.Require().NoError(err)

	select {
	case frame := <-s.server.received:
		s.Equal(model.EventJoinGame, frame.Event)
		s.JSONEq(`"game-1"`, string(frame.Data))
	case <-time.After(2 * time.Second):
		s.Fail("server did not receive the frame")
	}
}

func (s *ManagerSuite) TestEmitWhenDisconnected() {
	err := s.manager.Emit(model.EventJoinGame, "game-1")
	s.ErrorIs(err, model.ErrNotConnected)
}

func (s *ManagerSuite) TestSubscriberReceivesEventsInOrder() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	got := make(chan string, 16)
	unsub := s.manager.On(model.EventMessage, func(data json.RawMessage) {
		var text string
		_ = json.Unmarshal(data, &text)
		got <- text
	})
	defer unsub()

	for _, text := range []string{"one", "two", "three"} {
		s.Require().NoError(s.server.push(model.EventMessage, text))
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case text := <-got:
			s.Equal(want, text)
		case <-time.After(2 * time.Second):
			s.Fail("event not delivered")
		}
	}
}

func (s *ManagerSuite) TestUnsubscribeStopsDelivery() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	got := make(chan string, 16)
	unsub := s.manager.On(model.EventMessage, func(data json.RawMessage) {
		got <- string(data)
	})
	unsub()

	s.Require().NoError(s.server.push(model.EventMessage, "late"))

	select {
	case <-got:
		s.Fail("handler ran after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *ManagerSuite) TestDisconnectClearsHandle() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	s.manager.Disconnect()
	s.Nil(s.manager.Conn())
}

func (s *ManagerSuite) TestDisconnectWhenNotConnected() {
	s.NotPanics(func() { s.manager.Disconnect() })
}

func (s *ManagerSuite) TestReconnectsAfterUnexpectedDrop() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	statuses := make(chan Status, 16)
	defer s.manager.OnStatus(func(st Status) { statuses <- st })()

	got := make(chan string, 16)
	defer s.manager.On(model.EventMessage, func(data json.RawMessage) {
		var text string
		_ = json.Unmarshal(data, &text)
		got <- text
	})()

	s.server.dropAll()

	s.waitForStatus(statuses, StatusReconnecting)
	s.waitForStatus(statuses, StatusConnected)

	// Subscriptions survive the reconnect
	s.Eventually(func() bool { return s.server.connCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Require().NoError(s.server.push(model.EventMessage, "after"))
	select {
	case text := <-got:
		s.Equal("after", text)
	case <-time.After(2 * time.Second):
		s.Fail("event not delivered after reconnect")
	}
}

func (s *ManagerSuite) TestReconnectExhaustionSurfacesDisconnected() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	statuses := make(chan Status, 16)
	defer s.manager.OnStatus(func(st Status) { statuses <- st })()

	// Kill the server so every reconnect attempt fails
	s.server.close()

	s.waitForStatus(statuses, StatusReconnecting)
	s.waitForStatus(statuses, StatusDisconnected)
	s.Nil(s.manager.Conn())
}

func (s *ManagerSuite) TestDeliberateDisconnectDoesNotReconnect() {
	_, err := s.manager.Connect(s.ctx, "cred")
	s.Require().NoError(err)

	s.manager.Disconnect()

	time.Sleep(200 * time.Millisecond)
	s.server.mu.Lock()
	handshakes := len(s.server.auth)
	s.server.mu.Unlock()
	s.Equal(1, handshakes, "no new handshake after deliberate disconnect")
}

func (s *ManagerSuite) waitForStatus(statuses <-chan Status, want Status) {
	s.T().Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-statuses:
			if st == want {
				return
			}
		case <-deadline:
			s.FailNow("timed out waiting for status " + want.String())
		}
	}
}
