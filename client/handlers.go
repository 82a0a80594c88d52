package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/metrics"
	"github.com/protomem/chatik/internal/models"
	"github.com/protomem/chatik/internal/state"
	"github.com/protomem/chatik/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame types pushed to UI clients over /ws.
const (
	frameState  = "state"
	frameStream = "stream"
)

type stateFrame struct {
	Type   string         `json:"type"`
	State  state.Snapshot `json:"state"`
	Stream stream.State   `json:"stream"`
}

type streamFrame struct {
	Type  string       `json:"type"`
	State stream.State `json:"state"`
}

// uiClient is a browser or tool connected to the bridge WebSocket.
type uiClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Bridge exposes a Client to local front ends over HTTP and pushes state
// snapshots to every connected UI.
type Bridge struct {
	client *Client
	logger zerolog.Logger

	uiClients map[*uiClient]bool
	uiMu      sync.RWMutex

	versionMu   sync.Mutex
	lastVersion uint64
}

// NewBridge creates a bridge and subscribes it to state and stream changes.
func NewBridge(client *Client, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		client:    client,
		logger:    logger.With().Str("component", "bridge").Logger(),
		uiClients: make(map[*uiClient]bool),
	}

	client.State().Subscribe(b.onSnapshot)
	client.OnStreamStateChange(func(s stream.State) {
		b.broadcastToUI(mustMarshal(streamFrame{Type: frameStream, State: s}))
	})
	return b
}

// Routes returns the bridge HTTP handler.
func (b *Bridge) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(b.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", b.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", b.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", b.HandleState)
		r.Get("/preferences/transport", b.HandleGetTransport)
		r.Put("/preferences/transport", b.HandleSetTransport)
		r.Post("/channels/{id}/select", b.HandleSelectChannel)
		r.Post("/refresh", b.HandleRefresh)
	})
	return r
}

// requestLogger logs every request with zerolog.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// onSnapshot pushes a snapshot unless a newer one was already pushed.
// Listeners run after the store unlocks, so snapshots may arrive out of order.
func (b *Bridge) onSnapshot(s state.Snapshot) {
	b.versionMu.Lock()
	defer b.versionMu.Unlock()
	if s.Version <= b.lastVersion {
		return
	}
	b.lastVersion = s.Version
	b.broadcastToUI(b.stateFrame(s))
}

func (b *Bridge) stateFrame(s state.Snapshot) []byte {
	return mustMarshal(stateFrame{Type: frameState, State: s, Stream: b.client.StreamState()})
}

func (b *Bridge) broadcastToUI(data []byte) {
	b.uiMu.RLock()
	defer b.uiMu.RUnlock()
	for c := range b.uiClients {
		select {
		case c.send <- data:
		default:
			// Slow client; it catches up on the next snapshot.
		}
	}
}

// HandleWebSocket upgrades a UI connection and pushes the current snapshot,
// then every later one.
func (b *Bridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &uiClient{conn: conn, send: make(chan []byte, 64)}
	c.send <- b.stateFrame(b.client.State().Snapshot())

	b.uiMu.Lock()
	b.uiClients[c] = true
	b.uiMu.Unlock()
	metrics.BridgeClients.Inc()

	go b.writePump(c)
	b.readPump(c)
}

func (b *Bridge) readPump(c *uiClient) {
	defer func() {
		b.uiMu.Lock()
		delete(b.uiClients, c)
		b.uiMu.Unlock()
		metrics.BridgeClients.Dec()
		close(c.send)
	}()

	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug().Err(err).Msg("ui websocket error")
			}
			return
		}
	}
}

func (b *Bridge) writePump(c *uiClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// CloseClients disconnects every UI client.
func (b *Bridge) CloseClients() {
	b.uiMu.RLock()
	defer b.uiMu.RUnlock()
	for c := range b.uiClients {
		c.conn.Close()
	}
}

func (b *Bridge) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleState returns the current snapshot.
func (b *Bridge) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateFrame{
		Type:   frameState,
		State:  b.client.State().Snapshot(),
		Stream: b.client.StreamState(),
	})
}

type transportPreference struct {
	Transport models.Transport `json:"transport"`
}

func (b *Bridge) HandleGetTransport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transportPreference{Transport: b.client.Transport()})
}

// HandleSetTransport stores the transport preference; it applies on the
// next connect.
func (b *Bridge) HandleSetTransport(w http.ResponseWriter, r *http.Request) {
	var req transportPreference
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.InvalidArg("invalid request body"))
		return
	}
	t, err := models.ParseTransport(string(req.Transport))
	if err != nil {
		writeError(w, apperr.InvalidArg("transport must be SSE or WEBSOCKET"))
		return
	}
	if err := b.client.SetTransport(t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transportPreference{Transport: t})
}

func (b *Bridge) HandleSelectChannel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.InvalidArg("invalid channel id"))
		return
	}
	if err := b.client.SelectChannel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Bridge) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := b.client.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"code", "error"} with a status derived from
// its code.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperr.CodeAuth, apperr.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeNetwork, apperr.CodeServer:
		status = http.StatusBadGateway
	}

	msg := err.Error()
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, status, map[string]string{"code": string(code), "error": msg})
}

func mustMarshal(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
