// Package chattest provides an in-memory chatik API server for tests. It
// serves the REST endpoints and both stream transports, and lets a test push
// arbitrary frames to every connected stream client.
package chattest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/protomem/chatik/internal/auth"
	"github.com/protomem/chatik/internal/models"
	"github.com/protomem/chatik/internal/protocol"
)

// TokenTTL is the lifetime of tokens issued by login and register.
const TokenTTL = time.Hour

type account struct {
	user         models.User
	passwordHash []byte
}

type failure struct {
	status  int
	message string
}

// Server is a fake chatik API.
type Server struct {
	srv    *httptest.Server
	hub    *hub
	secret []byte
	logger zerolog.Logger

	mu       sync.Mutex
	accounts map[uuid.UUID]*account
	emails   map[string]uuid.UUID
	channels []models.Channel
	messages map[uuid.UUID][]models.Message
	headers  []string
	hits     map[string]int
	failNext *failure

	closeOnce sync.Once
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		hub:      newHub(zerolog.Nop()),
		secret:   []byte(uuid.NewString()),
		logger:   zerolog.Nop(),
		accounts: make(map[uuid.UUID]*account),
		emails:   make(map[string]uuid.UUID),
		channels: []models.Channel{},
		messages: make(map[uuid.UUID][]models.Message),
		hits:     make(map[string]int),
	}
	go s.hub.run()
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)

		r.Get("/stream/ws", s.handleWebSocket)
		r.Get("/stream/sse", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/channels", s.handleListChannels)
			r.Post("/channels", s.handleCreateChannel)
			r.Delete("/channels/{id}", s.handleDeleteChannel)
			r.Get("/channels/{id}/messages", s.handleListMessages)
			r.Post("/channels/{id}/messages", s.handleCreateMessage)
			r.Delete("/channels/{id}/messages/{messageId}", s.handleDeleteMessage)
		})
	})
	return r
}

// Close disconnects every stream client and shuts the server down.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.hub.Close()
		s.srv.Close()
	})
}

// URL is the server root.
func (s *Server) URL() string { return s.srv.URL }

// APIURL is the REST base, e.g. http://127.0.0.1:1234/api/v1.
func (s *Server) APIURL() string { return s.srv.URL + "/api/v1" }

// StreamBase is the base of the stream endpoints.
func (s *Server) StreamBase() string { return s.APIURL() + "/stream" }

// HTTPClient returns a client wired to the server.
func (s *Server) HTTPClient() *http.Client { return s.srv.Client() }

// SeedUser creates an account and returns it with a valid token.
func (s *Server) SeedUser(nickname, email, password string) (models.User, string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	now := time.Now().UTC()
	user := models.User{
		ID:         uuid.New(),
		Nickname:   nickname,
		Email:      email,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.accounts[user.ID] = &account{user: user, passwordHash: hash}
	s.emails[strings.ToLower(email)] = user.ID
	s.mu.Unlock()

	return user, s.IssueToken(user, TokenTTL)
}

// IssueToken signs a token for user that expires after ttl. A negative ttl
// yields an already expired token.
func (s *Server) IssueToken(user models.User, ttl time.Duration) string {
	now := time.Now()
	claims := auth.Claims{
		UserID: user.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return token
}

// SeedChannel creates a channel without notifying stream clients.
func (s *Server) SeedChannel(owner models.User, title string) models.Channel {
	now := time.Now().UTC()
	ch := models.Channel{ID: uuid.New(), Title: title, Owner: owner, CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.channels = append(s.channels, ch)
	s.mu.Unlock()
	return ch
}

// SeedMessage creates a message without notifying stream clients.
func (s *Server) SeedMessage(author models.User, channelID uuid.UUID, content string) models.Message {
	now := time.Now().UTC()
	msg := models.Message{ID: uuid.New(), Content: content, ChannelID: channelID, Author: author, CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.messages[channelID] = append(s.messages[channelID], msg)
	s.mu.Unlock()
	return msg
}

// Push sends an event to every stream client.
func (s *Server) Push(e protocol.Event) {
	data, err := protocol.Encode(e)
	if err != nil {
		panic(err)
	}
	s.hub.Broadcast(data)
}

// PushRaw sends a frame as-is, valid or not.
func (s *Server) PushRaw(frame []byte) {
	s.hub.Broadcast(frame)
}

// Subscribers is the number of connected stream clients.
func (s *Server) Subscribers() int {
	return s.hub.Count()
}

// DropStreams closes every stream connection from the server side.
func (s *Server) DropStreams() {
	s.hub.Drop()
}

// AuthHeaders returns every Authorization header received so far.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headers...)
}

// Hits counts requests for a method and path, e.g. ("GET", "/api/v1/channels").
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// FailNext makes the next REST request fail with status and message.
func (s *Server) FailNext(status int, message string) {
	s.mu.Lock()
	s.failNext = &failure{status: status, message: message}
	s.mu.Unlock()
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		if h := r.Header.Get("Authorization"); h != "" {
			s.headers = append(s.headers, h)
		}
		fail := s.failNext
		if fail != nil && !strings.HasPrefix(r.URL.Path, "/api/v1/stream/") {
			s.failNext = nil
		} else {
			fail = nil
		}
		s.mu.Unlock()

		if fail != nil {
			writeError(w, fail.status, fail.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) broadcast(e protocol.Event) {
	data, err := protocol.Encode(e)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode event")
		return
	}
	s.hub.Broadcast(data)
}

func (s *Server) String() string {
	return fmt.Sprintf("chattest.Server(%s)", s.srv.URL)
}
