package state

import (
	"github.com/protomem/chatik/internal/models"
)

// SetCredentials writes a new session through to the credential store and
// then makes it current. A session without a token or user is ignored. If the
// write fails the in-memory session is left unchanged.
func (s *Store) SetCredentials(session models.Session) error {
	if session.Token == "" || session.User == nil {
		s.logger.Debug().Msg("ignoring incomplete credentials")
		return nil
	}

	// The credential store may hit disk or the OS keyring; keep it off the lock.
	if err := s.creds.Set(session); err != nil {
		return err
	}
	user := *session.User
	s.mutate(func() bool {
		s.session = models.Session{Token: session.Token, User: &user}
		return true
	})
	return nil
}

// ClearCredentials drops the session and removes it from the credential store.
// The in-memory session is cleared even if the store write fails.
func (s *Store) ClearCredentials() error {
	err := s.creds.Clear()
	s.mutate(func() bool {
		changed := !s.session.IsZero() || s.session.User != nil
		s.session = models.Session{}
		return changed
	})
	return err
}

// Reset clears channels, the current channel and messages.
func (s *Store) Reset() {
	s.mutate(func() bool {
		changed := len(s.channels) > 0 || s.current != nil || len(s.messages) > 0
		s.channels = []models.Channel{}
		s.messages = []models.Message{}
		if s.current != nil {
			s.current = nil
			s.selection++
		}
		return changed
	})
}
