package state

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protomem/chatik/internal/credentials"
	"github.com/protomem/chatik/internal/models"
)

func newStore(t *testing.T) (*Store, credentials.Store) {
	t.Helper()
	creds := credentials.NewMemoryStore()
	return New(creds, zerolog.Nop()), creds
}

func channel(title string) models.Channel {
	return models.Channel{ID: uuid.New(), Title: title}
}

func message(ch models.Channel, content string) models.Message {
	return models.Message{ID: uuid.New(), ChannelID: ch.ID, Content: content}
}

func TestStore_AddIsIdempotent(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")

	for _, ch := range []models.Channel{a, b, a, a, b} {
		s.AddChannel(ch)
	}
	require.Len(t, s.Channels(), 2)

	require.NoError(t, s.SetCurrentChannel(&a))
	m1, m2 := message(a, "1"), message(a, "2")
	for _, m := range []models.Message{m1, m2, m1, m2, m2} {
		s.AddMessage(m)
	}
	assert.Equal(t, []models.Message{m1, m2}, s.Messages())
}

func TestStore_SetChannelsCollapsesDuplicates(t *testing.T) {
	s, _ := newStore(t)
	a := channel("a")
	dup := a
	dup.Title = "renamed"

	s.SetChannels([]models.Channel{a, dup, channel("b")})

	channels := s.Channels()
	require.Len(t, channels, 2)
	assert.Equal(t, "a", channels[0].Title)
}

func TestStore_RemoveCurrentChannelCascades(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")
	s.SetChannels([]models.Channel{a, b})
	require.NoError(t, s.SetCurrentChannel(&a))
	s.SetMessages([]models.Message{message(a, "x")})

	assert.True(t, s.RemoveChannel(a.ID))

	assert.Nil(t, s.CurrentChannel())
	assert.Empty(t, s.Messages())
	assert.Equal(t, []models.Channel{b}, s.Channels())
}

func TestStore_RemoveOtherChannelKeepsSelection(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")
	s.SetChannels([]models.Channel{a, b})
	require.NoError(t, s.SetCurrentChannel(&a))
	msgs := []models.Message{message(a, "x")}
	s.SetMessages(msgs)

	s.RemoveChannel(b.ID)

	require.NotNil(t, s.CurrentChannel())
	assert.Equal(t, a.ID, s.CurrentChannel().ID)
	assert.Equal(t, msgs, s.Messages())
}

func TestStore_SetChannelsWithoutCurrentDeactivates(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")
	s.SetChannels([]models.Channel{a, b})
	require.NoError(t, s.SetCurrentChannel(&a))
	s.SetMessages([]models.Message{message(a, "x")})

	s.SetChannels([]models.Channel{b})

	assert.Nil(t, s.CurrentChannel())
	assert.Empty(t, s.Messages())
}

func TestStore_SetCurrentChannel(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")
	s.SetChannels([]models.Channel{a, b})

	unknown := channel("ghost")
	assert.ErrorIs(t, s.SetCurrentChannel(&unknown), ErrUnknownChannel)
	assert.Nil(t, s.CurrentChannel())

	require.NoError(t, s.SetCurrentChannel(&a))
	s.SetMessages([]models.Message{message(a, "x")})

	// Re-selecting the same channel keeps its messages.
	require.NoError(t, s.SetCurrentChannel(&a))
	assert.Len(t, s.Messages(), 1)

	require.NoError(t, s.SetCurrentChannel(&b))
	assert.Empty(t, s.Messages())

	require.NoError(t, s.SetCurrentChannel(nil))
	assert.Nil(t, s.CurrentChannel())
}

func TestStore_MessagesOfOtherChannelsAreDropped(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")
	s.SetChannels([]models.Channel{a, b})

	assert.False(t, s.AddMessage(message(a, "no channel selected")))

	require.NoError(t, s.SetCurrentChannel(&a))
	assert.False(t, s.AddMessage(message(b, "other channel")))

	keep := message(a, "keep")
	s.SetMessages([]models.Message{keep, message(b, "orphan")})
	assert.Equal(t, []models.Message{keep}, s.Messages())
}

func TestStore_RemoveMessage(t *testing.T) {
	s, _ := newStore(t)
	a := channel("a")
	s.SetChannels([]models.Channel{a})
	require.NoError(t, s.SetCurrentChannel(&a))
	m1, m2 := message(a, "1"), message(a, "2")
	s.SetMessages([]models.Message{m1, m2})

	assert.True(t, s.RemoveMessage(m1.ID))
	assert.False(t, s.RemoveMessage(uuid.New()))
	assert.Equal(t, []models.Message{m2}, s.Messages())
}

func TestStore_StaleMessagesResultIsDiscarded(t *testing.T) {
	s, _ := newStore(t)
	a, b := channel("a"), channel("b")
	s.SetChannels([]models.Channel{a, b})

	_, ok := s.BeginMessagesLoad()
	assert.False(t, ok)

	require.NoError(t, s.SetCurrentChannel(&a))
	ticketA, ok := s.BeginMessagesLoad()
	require.True(t, ok)

	require.NoError(t, s.SetCurrentChannel(&b))
	ticketB, ok := s.BeginMessagesLoad()
	require.True(t, ok)

	fresh := message(b, "fresh")
	assert.True(t, s.ApplyMessages(ticketB, []models.Message{fresh}))
	assert.False(t, s.ApplyMessages(ticketA, []models.Message{message(a, "stale")}))
	assert.Equal(t, []models.Message{fresh}, s.Messages())

	// Leaving and re-entering a channel invalidates tickets issued before.
	require.NoError(t, s.SetCurrentChannel(&a))
	require.NoError(t, s.SetCurrentChannel(&b))
	assert.False(t, s.ApplyMessages(ticketB, nil))
}

func TestStore_CredentialsRoundTrip(t *testing.T) {
	s, creds := newStore(t)
	user := &models.User{ID: uuid.New(), Nickname: "u"}

	require.NoError(t, s.SetCredentials(models.Session{Token: "t", User: user}))
	assert.Equal(t, "t", s.Token())
	assert.Equal(t, "t", creds.Get().Token)

	require.NoError(t, s.ClearCredentials())
	assert.Equal(t, models.Session{}, s.Session())
	assert.True(t, creds.Get().IsZero())
	assert.Nil(t, creds.Get().User)
}

// slowCredentials blocks Set until release is closed.
type slowCredentials struct {
	credentials.Store
	entered chan struct{}
	release chan struct{}
	err     error
}

func (c *slowCredentials) Set(session models.Session) error {
	close(c.entered)
	<-c.release
	if c.err != nil {
		return c.err
	}
	return c.Store.Set(session)
}

func TestStore_CredentialWriteDoesNotBlockReaders(t *testing.T) {
	creds := &slowCredentials{
		Store:   credentials.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(creds, zerolog.Nop())
	user := &models.User{ID: uuid.New(), Nickname: "u"}

	done := make(chan error, 1)
	go func() { done <- s.SetCredentials(models.Session{Token: "t", User: user}) }()
	<-creds.entered

	read := make(chan string, 1)
	go func() {
		s.AddChannel(channel("a"))
		read <- s.Token()
	}()
	select {
	case token := <-read:
		assert.Empty(t, token)
	case <-time.After(2 * time.Second):
		t.Fatal("store locked during credential write")
	}

	close(creds.release)
	require.NoError(t, <-done)
	assert.Equal(t, "t", s.Token())
}

func TestStore_FailedCredentialWriteKeepsSession(t *testing.T) {
	creds := &slowCredentials{
		Store:   credentials.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
		err:     errors.New("keyring locked"),
	}
	close(creds.release)
	s := New(creds, zerolog.Nop())
	version := s.Snapshot().Version

	err := s.SetCredentials(models.Session{Token: "t", User: &models.User{ID: uuid.New()}})

	require.Error(t, err)
	assert.True(t, s.Session().IsZero())
	assert.Equal(t, version, s.Snapshot().Version)
}

func TestStore_IncompleteCredentialsIgnored(t *testing.T) {
	s, creds := newStore(t)

	require.NoError(t, s.SetCredentials(models.Session{Token: "t"}))
	require.NoError(t, s.SetCredentials(models.Session{User: &models.User{}}))

	assert.True(t, s.Session().IsZero())
	assert.True(t, creds.Get().IsZero())
}

func TestStore_RestoresSessionFromCredentials(t *testing.T) {
	creds := credentials.NewMemoryStore()
	user := &models.User{ID: uuid.New(), Nickname: "u"}
	require.NoError(t, creds.Set(models.Session{Token: "t", User: user}))

	s := New(creds, zerolog.Nop())
	assert.Equal(t, "t", s.Token())
	require.NotNil(t, s.Session().User)
	assert.Equal(t, user.ID, s.Session().User.ID)
}

func TestStore_SubscribeReceivesVersionedSnapshots(t *testing.T) {
	s, _ := newStore(t)
	var versions []uint64
	s.Subscribe(func(snap Snapshot) {
		versions = append(versions, snap.Version)
	})

	a := channel("a")
	s.AddChannel(a)
	s.AddChannel(a) // no change, no notification
	s.RemoveChannel(a.ID)

	assert.Equal(t, []uint64{1, 2}, versions)
}
