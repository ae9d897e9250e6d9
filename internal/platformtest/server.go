// Package platformtest is an in-process stand-in for the external card-game
// platform: the REST API and the real-time channel the client consumes.
// It exists so the client can be exercised end to end in tests without the
// real service. It is not a product component and implements no game rules.
package platformtest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/socket"
)

// TokenTTL is the lifetime of minted credentials
const TokenTTL = time.Hour

// Server is the fake platform
type Server struct {
	// OmitUserInAuthResponse drops the user object from auth responses,
	// forcing the client to derive identity from the token
	OmitUserInAuthResponse bool

	logger   *slog.Logger
	key      []byte
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	accounts map[string]*account // keyed by email
	games    map[model.GameID]*room
	order    []model.GameID
	clients  map[*client]bool
}

type account struct {
	user model.User
	hash []byte
}

type room struct {
	game    model.Game
	members map[model.UserID]string // id -> display name
}

type client struct {
	user model.User
	ws   *websocket.Conn

	mu    sync.Mutex
	rooms map[model.GameID]bool
}

// New starts a fake platform server
func New(logger *slog.Logger) *Server {
	s := &Server{
		logger:   logger.With(slog.String("component", "platformtest")),
		key:      []byte("platformtest-signing-key"),
		accounts: make(map[string]*account),
		games:    make(map[model.GameID]*room),
		clients:  make(map[*client]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.Handle("/api/games", s.requireAuth(s.handleListGames)).Methods(http.MethodGet)
	r.Handle("/api/games", s.requireAuth(s.handleCreateGame)).Methods(http.MethodPost)
	r.Handle("/api/games/join", s.requireAuth(s.handleJoinGame)).Methods(http.MethodPost)
	r.Handle("/api/games/leave/{id}", s.requireAuth(s.handleLeaveGame)).Methods(http.MethodPost)
	r.Handle("/api/games/action", s.requireAuth(s.handleAction)).Methods(http.MethodPost)
	r.Handle("/api/games/{id}", s.requireAuth(s.handleGetGame)).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleSocket)

	s.srv = httptest.NewServer(r)
	return s
}

// URL is the REST base URL
func (s *Server) URL() string {
	return s.srv.URL
}

// SocketURL is the real-time channel endpoint
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

// Close shuts the fake platform down
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		_ = c.ws.Close()
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()
	s.srv.Close()
}

// MintToken signs a credential for user with the given lifetime. Negative
// lifetimes produce already-expired credentials.
func (s *Server) MintToken(user model.User, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub":   string(user.ID),
		"name":  user.Name,
		"email": user.Email,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	raw, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	return raw
}

// AddGame seeds a room directly, bypassing the API
func (s *Server) AddGame(game model.Game) {
	s.mu.Lock()
	s.games[game.ID] = &room{game: game, members: make(map[model.UserID]string)}
	s.order = append(s.order, game.ID)
	s.mu.Unlock()
	s.broadcastGames()
}

// REST handlers

type authRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "hashing failed")
		return
	}
	acct := &account{
		user: model.User{ID: model.UserID(uuid.NewString()), Name: req.Name, Email: req.Email},
		hash: hash,
	}
	s.accounts[req.Email] = acct
	s.mu.Unlock()

	s.writeAuthResponse(w, acct.user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.writeAuthResponse(w, acct.user)
}

func (s *Server) writeAuthResponse(w http.ResponseWriter, user model.User) {
	resp := map[string]any{
		"accessToken":  s.MintToken(user, TokenTTL),
		"refreshToken": uuid.NewString(),
	}
	if !s.OmitUserInAuthResponse {
		resp["user"] = user
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gamesSnapshot())
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"maxPlayers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "game name is required")
		return
	}
	if req.MaxPlayers <= 0 {
		req.MaxPlayers = 4
	}

	game := model.Game{
		ID:         model.GameID(uuid.NewString()),
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		Status:     model.StatusWaiting,
		CreatedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	s.games[game.ID] = &room{game: game, members: make(map[model.UserID]string)}
	s.order = append(s.order, game.ID)
	s.mu.Unlock()

	s.broadcastGames()
	writeJSON(w, http.StatusCreated, game)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := model.GameID(mux.Vars(r)["id"])
	s.mu.Lock()
	rm, ok := s.games[id]
	var game model.Game
	if ok {
		game = rm.game
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var req struct {
		GameID model.GameID `json:"gameId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	rm, ok := s.games[req.GameID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if len(rm.members) >= rm.game.MaxPlayers {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "game is full")
		return
	}
	rm.members[user.ID] = user.Name
	rm.game.PlayerCount = len(rm.members)
	s.mu.Unlock()

	s.broadcastGames()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	id := model.GameID(mux.Vars(r)["id"])

	s.mu.Lock()
	rm, ok := s.games[id]
	if ok {
		delete(rm.members, user.ID)
		rm.game.PlayerCount = len(rm.members)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}

	s.broadcastGames()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameID model.GameID    `json:"gameId"`
		Action json.RawMessage `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Auth middleware

type contextKey string

const userContextKey contextKey = "user"

func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r, user)))
	})
}

func (s *Server) authenticate(raw string) (model.User, error) {
	if raw == "" {
		return model.User{}, jwt.ErrTokenMalformed
	}
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return model.User{}, err
	}
	claims := parsed.Claims.(jwt.MapClaims)
	user := model.User{}
	if sub, ok := claims["sub"].(string); ok {
		user.ID = model.UserID(sub)
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	return user, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func withUser(r *http.Request, user model.User) context.Context {
	return context.WithValue(r.Context(), userContextKey, user)
}

func userFrom(r *http.Request) model.User {
	user, _ := r.Context().Value(userContextKey).(model.User)
	return user
}

// Real-time channel

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{user: user, ws: ws, rooms: make(map[model.GameID]bool)}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.dropClient(c)
		_ = c.ws.Close()
	}()
	for {
		var frame socket.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		s.dispatch(c, frame)
	}
}

func (s *Server) dispatch(c *client, frame socket.Frame) {
	switch frame.Event {
	case model.EventJoinGame:
		var id model.GameID
		if json.Unmarshal(frame.Data, &id) != nil {
			c.send(model.EventError, map[string]string{"message": "bad join payload"})
			return
		}
		s.joinRoom(c, id)
	case model.EventLeaveGame:
		var id model.GameID
		if json.Unmarshal(frame.Data, &id) != nil {
			c.send(model.EventError, map[string]string{"message": "bad leave payload"})
			return
		}
		s.leaveRoom(c, id)
	case model.EventSendMessage:
		var req struct {
			GameID  model.GameID `json:"gameId"`
			Message string       `json:"message"`
		}
		if json.Unmarshal(frame.Data, &req) != nil {
			c.send(model.EventError, map[string]string{"message": "bad message payload"})
			return
		}
		msg := model.ChatMessage{
			ID:         uuid.NewString(),
			SenderID:   c.user.ID,
			SenderName: c.user.Name,
			Text:       req.Message,
			Timestamp:  time.Now().UTC(),
		}
		s.broadcastRoom(req.GameID, model.EventMessage, msg)
	case model.EventGameAction:
		var req struct {
			GameID model.GameID    `json:"gameId"`
			Action json.RawMessage `json:"action"`
		}
		if json.Unmarshal(frame.Data, &req) != nil {
			c.send(model.EventError, map[string]string{"message": "bad action payload"})
			return
		}
		s.broadcastRoom(req.GameID, model.EventGameState, map[string]any{
			"gameId":     req.GameID,
			"lastAction": req.Action,
		})
	default:
		c.send(model.EventError, map[string]string{"message": "unknown event"})
	}
}

func (s *Server) joinRoom(c *client, id model.GameID) {
	s.mu.Lock()
	rm, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		c.send(model.EventError, map[string]string{"message": "game not found"})
		return
	}
	rm.members[c.user.ID] = c.user.Name
	rm.game.PlayerCount = len(rm.members)
	s.mu.Unlock()

	c.mu.Lock()
	c.rooms[id] = true
	c.mu.Unlock()

	s.broadcastRoom(id, model.EventPlayerJoined, model.Player{ID: c.user.ID, Name: c.user.Name})
	s.broadcastGames()
}

func (s *Server) leaveRoom(c *client, id model.GameID) {
	s.mu.Lock()
	if rm, ok := s.games[id]; ok {
		delete(rm.members, c.user.ID)
		rm.game.PlayerCount = len(rm.members)
	}
	s.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()

	s.broadcastRoom(id, model.EventPlayerLeft, model.Player{ID: c.user.ID, Name: c.user.Name})
	s.broadcastGames()
}

func (s *Server) dropClient(c *client) {
	c.mu.Lock()
	rooms := make([]model.GameID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.rooms = make(map[model.GameID]bool)
	c.mu.Unlock()

	s.mu.Lock()
	delete(s.clients, c)
	for _, id := range rooms {
		if rm, ok := s.games[id]; ok {
			delete(rm.members, c.user.ID)
			rm.game.PlayerCount = len(rm.members)
		}
	}
	s.mu.Unlock()

	for _, id := range rooms {
		s.broadcastRoom(id, model.EventPlayerLeft, model.Player{ID: c.user.ID, Name: c.user.Name})
	}
}

// broadcastGames pushes the full lobby snapshot to every connected client
func (s *Server) broadcastGames() {
	games := s.gamesSnapshot()
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.send(model.EventGameUpdate, games)
	}
}

func (s *Server) broadcastRoom(id model.GameID, event model.EventType, payload any) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		c.mu.Lock()
		member := c.rooms[id]
		c.mu.Unlock()
		if member {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.send(event, payload)
	}
}

func (s *Server) gamesSnapshot() []model.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := make([]model.Game, 0, len(s.order))
	for _, id := range s.order {
		if rm, ok := s.games[id]; ok {
			games = append(games, rm.game)
		}
	}
	return games
}

func (c *client) send(event model.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteJSON(socket.Frame{Event: event, Data: data})
}

// Response helpers

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
