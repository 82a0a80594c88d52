package chattest

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/models"
)

// subscriber is a connected stream client.
type subscriber struct {
	transport models.Transport
	send      chan []byte
}

func newSubscriber(transport models.Transport) *subscriber {
	return &subscriber{
		transport: transport,
		send:      make(chan []byte, 256),
	}
}

// hub fans frames out to every connected stream client.
type hub struct {
	clients   map[*subscriber]bool
	clientsMu sync.RWMutex

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan []byte
	drop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once

	logger zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		clients:    make(map[*subscriber]bool),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan []byte, 256),
		drop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *hub) run() {
	for {
		select {
		case sub := <-h.register:
			h.clientsMu.Lock()
			h.clients[sub] = true
			h.clientsMu.Unlock()
			h.logger.Debug().Str("transport", string(sub.transport)).Msg("stream client connected")

		case sub := <-h.unregister:
			h.remove(sub)

		case data := <-h.broadcast:
			var slow []*subscriber
			h.clientsMu.RLock()
			for sub := range h.clients {
				select {
				case sub.send <- data:
				default:
					slow = append(slow, sub)
				}
			}
			h.clientsMu.RUnlock()
			for _, sub := range slow {
				h.remove(sub)
			}

		case <-h.drop:
			h.disconnectAll()

		case <-h.done:
			h.disconnectAll()
			return
		}
	}
}

func (h *hub) disconnectAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for sub := range h.clients {
		delete(h.clients, sub)
		close(sub.send)
	}
}

func (h *hub) remove(sub *subscriber) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
		h.logger.Debug().Str("transport", string(sub.transport)).Msg("stream client disconnected")
	}
}

// Register adds a subscriber. It reports false once the hub is closed.
func (h *hub) Register(sub *subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *hub) Unregister(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Broadcast queues a frame for every subscriber.
func (h *hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// Drop disconnects every subscriber but keeps accepting new ones.
func (h *hub) Drop() {
	select {
	case h.drop <- struct{}{}:
	case <-h.done:
	}
}

func (h *hub) Count() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
