// Package state holds the client's in-memory view of the chat: session,
// channels, the current channel and its messages.
package state

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/credentials"
	"github.com/protomem/chatik/internal/models"
)

var ErrUnknownChannel = apperr.New(apperr.CodeNotFound, "channel is not known")

// Snapshot is a deep copy of the store at one point in time. Version grows
// with every mutation, so listeners can drop snapshots that arrive late.
type Snapshot struct {
	Version        uint64           `json:"version"`
	Session        models.Session   `json:"-"`
	User           *models.User     `json:"user"`
	Channels       []models.Channel `json:"channels"`
	CurrentChannel *models.Channel  `json:"currentChannel"`
	Messages       []models.Message `json:"messages"`
}

// Ticket tags a message query with the selection it was issued for.
type Ticket struct {
	ChannelID uuid.UUID
	selection uint64
}

// Store is the single mutable state container. It is only changed through
// its named operations; each runs to completion under one lock.
type Store struct {
	creds  credentials.Store
	logger zerolog.Logger

	mu        sync.Mutex
	version   uint64
	selection uint64
	session   models.Session
	channels  []models.Channel
	current   *models.Channel
	messages  []models.Message

	listenersMu sync.RWMutex
	listeners   []func(Snapshot)
}

// New creates a store whose session is restored from creds.
func New(creds credentials.Store, logger zerolog.Logger) *Store {
	return &Store{
		creds:    creds,
		logger:   logger.With().Str("component", "state").Logger(),
		session:  creds.Get(),
		channels: []models.Channel{},
		messages: []models.Message{},
	}
}

// Subscribe registers fn to receive a snapshot after every mutation that
// changed something. fn runs on the mutating goroutine after the lock is
// released; it may call back into the store.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// mutate runs fn under the lock and notifies listeners when fn reports a change.
func (s *Store) mutate(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	var snap Snapshot
	if changed {
		s.version++
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.listenersMu.RLock()
		listeners := slices.Clone(s.listeners)
		s.listenersMu.RUnlock()
		for _, fn := range listeners {
			fn(snap)
		}
	}
	return changed
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:  s.version,
		Session:  s.session,
		User:     s.session.User,
		Channels: slices.Clone(s.channels),
		Messages: slices.Clone(s.messages),
	}
	if s.current != nil {
		current := *s.current
		snap.CurrentChannel = &current
	}
	return snap
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Session returns the current session.
func (s *Store) Session() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Token returns the current session token, or "".
func (s *Store) Token() string {
	return s.Session().Token
}

// Channels returns a copy of the channel set.
func (s *Store) Channels() []models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.channels)
}

// CurrentChannel returns the active channel, or nil.
func (s *Store) CurrentChannel() *models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	current := *s.current
	return &current
}

// Messages returns a copy of the message set of the active channel.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}
