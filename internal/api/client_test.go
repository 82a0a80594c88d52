package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/chattest"
	"github.com/protomem/chatik/internal/models"
)

type fixture struct {
	srv    *chattest.Server
	client *Client
	token  string
	user   models.User
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	srv := chattest.New(t)
	f := &fixture{srv: srv}
	f.client = NewClient(srv.APIURL(), TokenFunc(func() string { return f.token }), Options{
		HTTPClient: srv.HTTPClient(),
		CacheTTL:   ttl,
		Logger:     zerolog.Nop(),
	})
	f.user, _ = srv.SeedUser("alice", "alice@example.com", "secret")
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	resp, err := f.client.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	f.token = resp.AccessToken
}

func TestClient_LoginSetsBearerForLaterCalls(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	resp, err := f.client.Login(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, f.user.ID, resp.User.ID)

	session := resp.Session()
	assert.Equal(t, resp.AccessToken, session.Token)
	require.NotNil(t, session.User)
	assert.Equal(t, "alice", session.User.Nickname)

	f.token = resp.AccessToken
	_, err = f.client.ListChannels(ctx)
	require.NoError(t, err)

	headers := f.srv.AuthHeaders()
	require.NotEmpty(t, headers)
	assert.Equal(t, "Bearer "+resp.AccessToken, headers[len(headers)-1])
}

func TestClient_LoginBadCredentials(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.client.Login(context.Background(), "alice@example.com", "wrong")

	require.ErrorIs(t, err, apperr.ErrAuth)
	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
	assert.Contains(t, appErr.Message, "invalid email or password")
}

func TestClient_Register(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	resp, err := f.client.Register(ctx, "bob", "bob@example.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bob", resp.User.Nickname)

	_, err = f.client.Register(ctx, "bob", "bob@example.com", "hunter2")
	require.ErrorIs(t, err, apperr.ErrAuth)
}

func TestClient_MissingTokenShortCircuits(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.New()

	calls := map[string]func() error{
		"list channels":  func() error { _, err := f.client.ListChannels(ctx); return err },
		"create channel": func() error { _, err := f.client.CreateChannel(ctx, "general"); return err },
		"delete channel": func() error { return f.client.DeleteChannel(ctx, id) },
		"list messages":  func() error { _, err := f.client.ListMessages(ctx, id); return err },
		"create message": func() error { _, err := f.client.CreateMessage(ctx, id, "hi"); return err },
		"delete message": func() error { return f.client.DeleteMessage(ctx, id, uuid.New()) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), apperr.ErrUnauthenticated)
		})
	}

	assert.Zero(t, f.srv.Hits(http.MethodGet, "/api/v1/channels"))
	assert.Zero(t, f.srv.Hits(http.MethodPost, "/api/v1/channels"))
}

func TestClient_ValidatesBeforeDispatch(t *testing.T) {
	f := newFixture(t, 0)
	f.login(t)
	ctx := context.Background()

	_, err := f.client.CreateChannel(ctx, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.client.CreateMessage(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.client.Login(ctx, "", "secret")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	assert.Zero(t, f.srv.Hits(http.MethodPost, "/api/v1/channels"))
}

func TestClient_ChannelsAndMessages(t *testing.T) {
	f := newFixture(t, 0)
	f.login(t)
	ctx := context.Background()

	ch, err := f.client.CreateChannel(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Title)
	assert.Equal(t, f.user.ID, ch.Owner.ID)

	channels, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, ch.ID, channels[0].ID)

	msg, err := f.client.CreateMessage(ctx, ch.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, ch.ID, msg.ChannelID)
	assert.Equal(t, f.user.ID, msg.Author.ID)

	messages, err := f.client.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)

	require.NoError(t, f.client.DeleteMessage(ctx, ch.ID, msg.ID))
	messages, err = f.client.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, f.client.DeleteChannel(ctx, ch.ID))
	channels, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestClient_ErrorMapping(t *testing.T) {
	f := newFixture(t, 0)
	f.login(t)
	ctx := context.Background()

	err := f.client.DeleteChannel(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.srv.FailNext(http.StatusInternalServerError, "database is down")
	_, err = f.client.ListChannels(ctx)
	require.ErrorIs(t, err, apperr.ErrServer)
	assert.Contains(t, err.Error(), "database is down")

	f.token = "forged"
	_, err = f.client.ListChannels(ctx)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestClient_NetworkError(t *testing.T) {
	f := newFixture(t, 0)
	f.login(t)
	f.srv.Close()

	_, err := f.client.ListChannels(context.Background())

	assert.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestClient_QueryCache(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.login(t)
	ctx := context.Background()
	const path = "/api/v1/channels"

	_, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	_, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.Hits(http.MethodGet, path))

	_, err = f.client.CreateChannel(ctx, "general")
	require.NoError(t, err)
	channels, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, 2, f.srv.Hits(http.MethodGet, path))

	// A different token never sees the previous session's results.
	f.token = f.srv.IssueToken(f.user, 2*time.Hour)
	_, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.srv.Hits(http.MethodGet, path))
}

func TestClient_CachedResultsAreCopies(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.login(t)
	ctx := context.Background()
	f.srv.SeedChannel(f.user, "general")

	first, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	first[0].Title = "mutated"

	second, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, "general", second[0].Title)
}

func TestAuthResponse_LegacyTokenField(t *testing.T) {
	resp := AuthResponse{Token: "legacy", User: models.User{Nickname: "alice"}}

	session := resp.Session()

	assert.Equal(t, "legacy", session.Token)
	assert.False(t, session.IsZero())
}

func TestClient_EmptyListsAreNotErrors(t *testing.T) {
	f := newFixture(t, 0)
	f.login(t)
	ctx := context.Background()

	channels, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.NotNil(t, channels)
	assert.Empty(t, channels)

	ch := f.srv.SeedChannel(f.user, "general")
	messages, err := f.client.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)

	// The API reports an empty list as 404 with this body.
	f.srv.FailNext(http.StatusNotFound, "channel(s) not found")
	channels, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestClient_RefetchSkipsCache(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.login(t)
	ctx := context.Background()
	const path = "/api/v1/channels"
	f.srv.SeedChannel(f.user, "general")

	channels, err := f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)

	f.srv.SeedChannel(f.user, "random")
	channels, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, 1, f.srv.Hits(http.MethodGet, path))

	channels, err = f.client.RefetchChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Equal(t, 2, f.srv.Hits(http.MethodGet, path))

	// The refetched result replaces the cached one.
	channels, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 2)
	assert.Equal(t, 2, f.srv.Hits(http.MethodGet, path))
}

func TestClient_InvalidateMessages(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.login(t)
	ctx := context.Background()
	ch := f.srv.SeedChannel(f.user, "general")
	path := "/api/v1/channels/" + ch.ID.String() + "/messages"

	_, err := f.client.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	_, err = f.client.ListChannels(ctx)
	require.NoError(t, err)

	f.client.InvalidateMessages(uuid.Nil)

	_, err = f.client.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.srv.Hits(http.MethodGet, path))
	_, err = f.client.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.Hits(http.MethodGet, "/api/v1/channels"))

	f.client.InvalidateMessages(ch.ID)
	_, err = f.client.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.srv.Hits(http.MethodGet, path))
}
