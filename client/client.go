// Package client composes the API client, local state, credentials and the
// event stream into the operations a chatik front end calls.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/api"
	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/auth"
	"github.com/protomem/chatik/internal/credentials"
	"github.com/protomem/chatik/internal/models"
	"github.com/protomem/chatik/internal/state"
	"github.com/protomem/chatik/internal/stream"
)

// Options configures the event stream and clock.
type Options struct {
	StreamBase string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	Reconnect            bool
	MaxReconnectInterval time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Client is the chatik client runtime.
type Client struct {
	api   *api.Client
	state *state.Store
	creds credentials.Store
	opts  Options

	logger zerolog.Logger

	// lifecycleMu serializes Connect and Disconnect.
	lifecycleMu  sync.Mutex
	stream       atomic.Pointer[stream.Client]
	cancelStream context.CancelFunc
	streamDone   chan struct{}

	listenersMu     sync.Mutex
	streamListeners []func(stream.State)
}

// New creates a client runtime. apiClient must take its token from store.
func New(apiClient *api.Client, store *state.Store, creds credentials.Store, opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		api:    apiClient,
		state:  store,
		creds:  creds,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "client").Logger(),
	}
}

// State returns the local state store.
func (c *Client) State() *state.Store {
	return c.state
}

// Resume reports whether a usable session was restored from the credential
// store. A session whose token has expired is cleared.
func (c *Client) Resume() bool {
	session := c.state.Session()
	if session.IsZero() {
		return false
	}
	if auth.Expired(session.Token, c.opts.Now()) {
		c.logger.Info().Msg("stored session expired, clearing it")
		if err := c.state.ClearCredentials(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear expired credentials")
		}
		return false
	}
	return true
}

// Login authenticates and stores the session. Nothing is stored on failure.
func (c *Client) Login(ctx context.Context, email, password string) (models.User, error) {
	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}
	return c.startSession(resp)
}

// Register creates an account and stores its session.
func (c *Client) Register(ctx context.Context, nickname, email, password string) (models.User, error) {
	resp, err := c.api.Register(ctx, nickname, email, password)
	if err != nil {
		return models.User{}, err
	}
	return c.startSession(resp)
}

func (c *Client) startSession(resp *api.AuthResponse) (models.User, error) {
	session := resp.Session()
	if err := c.state.SetCredentials(session); err != nil {
		return models.User{}, fmt.Errorf("store credentials: %w", err)
	}
	c.logger.Info().Str("user_id", resp.User.ID.String()).Msg("session started")
	return resp.User, nil
}

// Logout stops the stream and drops the session and all chat state.
func (c *Client) Logout() error {
	c.Disconnect()
	err := c.state.ClearCredentials()
	c.state.Reset()
	c.api.InvalidateCache()
	c.logger.Info().Msg("logged out")
	return err
}

// Refresh reloads the channel list and, if a channel is selected, its
// messages. Both go to the server regardless of the query cache.
func (c *Client) Refresh(ctx context.Context) error {
	channels, err := c.api.RefetchChannels(ctx)
	if err != nil {
		return err
	}
	c.state.SetChannels(channels)
	return c.loadMessages(ctx)
}

// SelectChannel makes a known channel current and refetches its messages. A
// result that arrives after another selection is discarded.
func (c *Client) SelectChannel(ctx context.Context, id uuid.UUID) error {
	var target *models.Channel
	for _, ch := range c.state.Channels() {
		if ch.ID == id {
			target = &ch
			break
		}
	}
	if target == nil {
		return state.ErrUnknownChannel
	}
	if err := c.state.SetCurrentChannel(target); err != nil {
		return err
	}
	return c.loadMessages(ctx)
}

// ClearSelection deactivates the current channel.
func (c *Client) ClearSelection() error {
	return c.state.SetCurrentChannel(nil)
}

func (c *Client) loadMessages(ctx context.Context) error {
	ticket, ok := c.state.BeginMessagesLoad()
	if !ok {
		return nil
	}
	messages, err := c.api.RefetchMessages(ctx, ticket.ChannelID)
	if err != nil {
		return err
	}
	c.state.ApplyMessages(ticket, messages)
	return nil
}

// CreateChannel creates a channel and adds it once the server confirms.
func (c *Client) CreateChannel(ctx context.Context, title string) (models.Channel, error) {
	ch, err := c.api.CreateChannel(ctx, title)
	if err != nil {
		return models.Channel{}, err
	}
	c.state.AddChannel(*ch)
	return *ch, nil
}

// DeleteChannel deletes a channel and removes it once the server confirms.
func (c *Client) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	if err := c.api.DeleteChannel(ctx, id); err != nil {
		return err
	}
	c.state.RemoveChannel(id)
	return nil
}

func (c *Client) currentChannel() (*models.Channel, error) {
	current := c.state.CurrentChannel()
	if current == nil {
		return nil, apperr.InvalidArg("no channel selected")
	}
	return current, nil
}

// SendMessage posts to the current channel.
func (c *Client) SendMessage(ctx context.Context, content string) (models.Message, error) {
	current, err := c.currentChannel()
	if err != nil {
		return models.Message{}, err
	}
	msg, err := c.api.CreateMessage(ctx, current.ID, content)
	if err != nil {
		return models.Message{}, err
	}
	c.state.AddMessage(*msg)
	return *msg, nil
}

// DeleteMessage deletes a message of the current channel.
func (c *Client) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	current, err := c.currentChannel()
	if err != nil {
		return err
	}
	if err := c.api.DeleteMessage(ctx, current.ID, id); err != nil {
		return err
	}
	c.state.RemoveMessage(id)
	return nil
}

// Transport returns the preferred stream transport.
func (c *Client) Transport() models.Transport {
	return c.creds.Transport()
}

// SetTransport persists the transport preference. It applies to the next
// Connect; a running stream keeps its transport.
func (c *Client) SetTransport(t models.Transport) error {
	switch t {
	case models.TransportSSE, models.TransportWebSocket:
	default:
		return apperr.InvalidArg(fmt.Sprintf("unknown transport %q", t))
	}
	return c.creds.SetTransport(t)
}

// OnStreamStateChange registers fn for state changes of current and future
// streams. fn runs on the stream goroutine and must not call Connect or
// Disconnect.
func (c *Client) OnStreamStateChange(fn func(stream.State)) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.listenersMu.Lock()
	c.streamListeners = append(c.streamListeners, fn)
	c.listenersMu.Unlock()

	if sc := c.stream.Load(); sc != nil {
		sc.OnStateChange(fn)
	}
}

// StreamState returns the state of the current stream.
func (c *Client) StreamState() stream.State {
	if sc := c.stream.Load(); sc != nil {
		return sc.State()
	}
	return stream.StateDisconnected
}

// Connect starts the event stream in the background with the session token
// and the stored transport, replacing a running stream. The token is bound
// for the life of the connection.
func (c *Client) Connect(ctx context.Context) error {
	token := c.state.Token()
	if token == "" {
		return fmt.Errorf("connect: %w", apperr.ErrUnauthenticated)
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	c.stopLocked()

	sc := stream.NewClient(c.opts.StreamBase, stream.NewReconciler(streamTarget{store: c.state, api: c.api}, c.opts.Logger), stream.Options{
		Transport:            c.creds.Transport(),
		HTTPClient:           c.opts.HTTPClient,
		Dialer:               c.opts.Dialer,
		Reconnect:            c.opts.Reconnect,
		MaxReconnectInterval: c.opts.MaxReconnectInterval,
		Logger:               c.opts.Logger,
	})
	c.listenersMu.Lock()
	for _, fn := range c.streamListeners {
		sc.OnStateChange(fn)
	}
	c.listenersMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stream.Store(sc)
	c.cancelStream = cancel
	c.streamDone = done

	go func() {
		defer close(done)
		if err := sc.Run(runCtx, token); err != nil {
			c.logger.Warn().Err(err).Msg("event stream stopped")
		}
	}()
	return nil
}

// StreamDone is closed when the current stream stops. It is nil when no
// stream was started.
func (c *Client) StreamDone() <-chan struct{} {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.streamDone
}

// Disconnect stops the stream and waits for it to finish.
func (c *Client) Disconnect() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	c.stopLocked()
}

func (c *Client) stopLocked() {
	if c.cancelStream == nil {
		return
	}
	c.cancelStream()
	<-c.streamDone
	c.cancelStream = nil
}
