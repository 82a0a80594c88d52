// Package stream maintains the live event connection to the chatik API and
// folds pushed events into local state.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/metrics"
	"github.com/protomem/chatik/internal/models"
)

// transport delivers raw frames from one connection. run calls opened once
// the connection is established and returns when ctx is done or the
// connection ends; a nil error means the server closed it cleanly.
type transport interface {
	run(ctx context.Context, endpoint string, opened func(), onFrame func([]byte)) error
}

// Options configures a Client.
type Options struct {
	Transport models.Transport

	// HTTPClient is used by the SSE transport. Its Timeout is ignored.
	HTTPClient *http.Client
	// Dialer is used by the WebSocket transport.
	Dialer *websocket.Dialer

	// Reconnect enables exponential backoff reconnects. When off, a closed
	// or failed connection stays down until Run is called again.
	Reconnect            bool
	MaxReconnectInterval time.Duration

	Logger zerolog.Logger
}

// Client is a single stream connection bound to one transport.
type Client struct {
	base       string
	transport  models.Transport
	conn       transport
	reconciler *Reconciler
	opts       Options
	logger     zerolog.Logger

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

// NewClient creates a stream client for the endpoints under base, e.g.
// http://localhost:8080/api/v1/stream.
func NewClient(base string, reconciler *Reconciler, opts Options) *Client {
	t := opts.Transport
	if t == "" {
		t = models.DefaultTransport
	}

	var conn transport
	switch t {
	case models.TransportWebSocket:
		conn = newWebSocketTransport(opts.Dialer)
	default:
		t = models.TransportSSE
		conn = newSSETransport(opts.HTTPClient)
	}

	return &Client{
		base:       strings.TrimSuffix(base, "/"),
		transport:  t,
		conn:       conn,
		reconciler: reconciler,
		opts:       opts,
		logger:     opts.Logger.With().Str("component", "stream").Str("transport", string(t)).Logger(),
	}
}

// Endpoint builds the connection URL for a transport. The token is bound at
// connect time only.
func Endpoint(base string, t models.Transport, token string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid stream base %q: %w", base, err)
	}

	switch t {
	case models.TransportWebSocket:
		u.Path += "/ws"
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
	default:
		u.Path += "/sse"
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transport returns the transport the client connects with.
func (c *Client) Transport() models.Transport {
	return c.transport
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called on every state transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	metrics.StreamState.Set(float64(s))
	c.logger.Debug().Stringer("state", s).Msg("stream state changed")
	for _, fn := range listeners {
		fn(s)
	}
}

// Run connects with token and applies events until ctx is done or the
// connection ends. Without a token it fails with apperr.ErrUnauthenticated
// and stays disconnected. Cancelling ctx is not an error.
func (c *Client) Run(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("stream: %w", apperr.ErrUnauthenticated)
	}
	endpoint, err := Endpoint(c.base, c.transport, token)
	if err != nil {
		return err
	}

	if !c.opts.Reconnect {
		_, err := c.connect(ctx, endpoint)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	if c.opts.MaxReconnectInterval > 0 {
		b.MaxInterval = c.opts.MaxReconnectInterval
	}

	for {
		opened, err := c.connect(ctx, endpoint)
		if ctx.Err() != nil {
			return nil
		}
		if opened {
			b.Reset()
		}

		wait := b.NextBackOff()
		c.logger.Info().Err(err).Dur("retry_in", wait).Msg("stream connection lost, reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connect runs one connection attempt to completion.
func (c *Client) connect(ctx context.Context, endpoint string) (opened bool, err error) {
	c.setState(StateConnecting)

	err = c.conn.run(ctx, endpoint, func() {
		opened = true
		metrics.StreamConnects.WithLabelValues(string(c.transport), "ok").Inc()
		c.logger.Info().Msg("stream connected")
		c.setState(StateOpen)
	}, c.handleFrame)

	switch {
	case ctx.Err() != nil:
		c.setState(StateClosed)
		return opened, nil
	case err == nil:
		c.logger.Info().Msg("stream closed by server")
		c.setState(StateClosed)
		return opened, nil
	default:
		if !opened {
			metrics.StreamConnects.WithLabelValues(string(c.transport), "error").Inc()
		}
		c.logger.Warn().Err(err).Msg("stream failed")
		c.setState(StateErrored)
		return opened, apperr.Wrap(apperr.CodeNetwork, "stream connection failed", err)
	}
}

func (c *Client) handleFrame(frame []byte) {
	// Malformed frames are already logged and counted; the stream stays open.
	_ = c.reconciler.ApplyFrame(frame)
}
