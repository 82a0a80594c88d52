package chattest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/protomem/chatik/internal/auth"
	"github.com/protomem/chatik/internal/models"
	"github.com/protomem/chatik/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type ctxKey struct{}

func userFrom(ctx context.Context) models.User {
	user, _ := ctx.Value(ctxKey{}).(models.User)
	return user
}

// authenticate verifies a token and resolves its user.
func (s *Server) authenticate(token string) (models.User, bool) {
	claims := &auth.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.User{}, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return models.User{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return models.User{}, false
	}
	return acc.user, true
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, ok := s.authenticate(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

type authResponse struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	var acc *account
	if id, ok := s.emails[strings.ToLower(req.Email)]; ok {
		acc = s.accounts[id]
	}
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken: s.IssueToken(acc.user, TokenTTL),
		User:        acc.user,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Nickname == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "nickname, email and password are required")
		return
	}

	s.mu.Lock()
	_, taken := s.emails[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if taken {
		writeError(w, http.StatusConflict, "email is already registered")
		return
	}

	user, token := s.SeedUser(req.Nickname, req.Email, req.Password)
	writeJSON(w, http.StatusCreated, authResponse{AccessToken: token, User: user})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	channels := append([]models.Channel{}, s.channels...)
	s.mu.Unlock()
	if len(channels) == 0 {
		writeError(w, http.StatusNotFound, "channel(s) not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	ch := s.SeedChannel(userFrom(r.Context()), req.Title)
	s.broadcast(protocol.NewChannel{Channel: ch})
	writeJSON(w, http.StatusCreated, map[string]any{"channel": ch})
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	user := userFrom(r.Context())

	s.mu.Lock()
	idx := s.channelIndexLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if s.channels[idx].Owner.ID != user.ID {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "only the owner can delete a channel")
		return
	}
	s.channels = append(s.channels[:idx], s.channels[idx+1:]...)
	delete(s.messages, id)
	s.mu.Unlock()

	s.broadcast(protocol.RemoveChannel{ChannelID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) channelIndexLocked(id uuid.UUID) int {
	for i, ch := range s.channels {
		if ch.ID == id {
			return i
		}
	}
	return -1
}

// channelParam resolves the {id} URL parameter to a known channel.
func (s *Server) channelParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return uuid.Nil, false
	}
	s.mu.Lock()
	known := s.channelIndexLocked(id) != -1
	s.mu.Unlock()
	if !known {
		writeError(w, http.StatusNotFound, "channel not found")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelParam(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	messages := append([]models.Message{}, s.messages[id]...)
	s.mu.Unlock()
	if len(messages) == 0 {
		writeError(w, http.StatusNotFound, "message(s) not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg := s.SeedMessage(userFrom(r.Context()), id, req.Content)
	s.broadcast(protocol.NewMessage{Message: msg})
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelParam(w, r)
	if !ok {
		return
	}
	msgID, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	s.mu.Lock()
	list := s.messages[id]
	found := false
	for i, m := range list {
		if m.ID == msgID {
			s.messages[id] = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	s.broadcast(protocol.RemoveMessage{MessageID: msgID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) streamUser(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := s.authenticate(r.URL.Query().Get("token")); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// handleWebSocket serves the WebSocket stream transport.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.streamUser(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := newSubscriber(models.TransportWebSocket)
	if !s.hub.Register(sub) {
		conn.Close()
		return
	}
	go s.writePump(conn, sub)
	s.readPump(conn, sub)
}

func (s *Server) readPump(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		s.hub.Unregister(sub)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Clients never send frames; reading only drives control messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSSE serves the server-sent events stream transport.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !s.streamUser(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := newSubscriber(models.TransportSSE)
	if !s.hub.Register(sub) {
		return
	}
	defer s.hub.Unregister(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
