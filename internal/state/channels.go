package state

import (
	"github.com/google/uuid"

	"github.com/protomem/chatik/internal/models"
)

func indexChannel(channels []models.Channel, id uuid.UUID) int {
	for i := range channels {
		if channels[i].ID == id {
			return i
		}
	}
	return -1
}

// clearCurrentLocked deactivates the current channel and drops its messages.
func (s *Store) clearCurrentLocked() {
	s.current = nil
	s.messages = []models.Message{}
	s.selection++
}

// SetChannels replaces the channel set. Duplicate ids collapse to the first
// entry. If the current channel is not in the new set it is deactivated.
func (s *Store) SetChannels(list []models.Channel) {
	s.mutate(func() bool {
		channels := make([]models.Channel, 0, len(list))
		for _, ch := range list {
			if indexChannel(channels, ch.ID) == -1 {
				channels = append(channels, ch)
			}
		}
		s.channels = channels

		if s.current != nil {
			if i := indexChannel(channels, s.current.ID); i == -1 {
				s.clearCurrentLocked()
			} else {
				current := channels[i]
				s.current = &current
			}
		}
		return true
	})
}

// AddChannel inserts ch unless a channel with the same id is already known.
func (s *Store) AddChannel(ch models.Channel) bool {
	return s.mutate(func() bool {
		if indexChannel(s.channels, ch.ID) != -1 {
			return false
		}
		s.channels = append(s.channels, ch)
		return true
	})
}

// RemoveChannel removes the channel with the given id. Removing the current
// channel also clears the current channel and the message set.
func (s *Store) RemoveChannel(id uuid.UUID) bool {
	return s.mutate(func() bool {
		i := indexChannel(s.channels, id)
		if i == -1 {
			return false
		}
		s.channels = append(s.channels[:i:i], s.channels[i+1:]...)
		if s.current != nil && s.current.ID == id {
			s.clearCurrentLocked()
		}
		return true
	})
}

// SetCurrentChannel switches the active channel. nil deactivates it. The
// channel must be known. Switching to a different channel drops the previous
// channel's messages; the caller is responsible for loading the new ones.
func (s *Store) SetCurrentChannel(ch *models.Channel) error {
	var err error
	s.mutate(func() bool {
		if ch == nil {
			if s.current == nil {
				return false
			}
			s.clearCurrentLocked()
			return true
		}

		i := indexChannel(s.channels, ch.ID)
		if i == -1 {
			err = ErrUnknownChannel
			return false
		}
		if s.current != nil && s.current.ID == ch.ID {
			return false
		}

		s.clearCurrentLocked()
		current := s.channels[i]
		s.current = &current
		return true
	})
	return err
}
