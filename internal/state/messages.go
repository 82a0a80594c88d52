package state

import (
	"github.com/google/uuid"

	"github.com/protomem/chatik/internal/models"
)

func indexMessage(messages []models.Message, id uuid.UUID) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}

// setMessagesLocked keeps only messages of the current channel, first
// occurrence of each id wins.
func (s *Store) setMessagesLocked(list []models.Message) {
	messages := make([]models.Message, 0, len(list))
	if s.current != nil {
		for _, msg := range list {
			if msg.ChannelID != s.current.ID {
				continue
			}
			if indexMessage(messages, msg.ID) == -1 {
				messages = append(messages, msg)
			}
		}
	}
	s.messages = messages
}

// SetMessages replaces the message set. Messages that do not belong to the
// current channel are dropped.
func (s *Store) SetMessages(list []models.Message) {
	s.mutate(func() bool {
		s.setMessagesLocked(list)
		return true
	})
}

// AddMessage inserts msg if it belongs to the current channel and its id is
// not already present.
func (s *Store) AddMessage(msg models.Message) bool {
	return s.mutate(func() bool {
		if s.current == nil || msg.ChannelID != s.current.ID {
			return false
		}
		if indexMessage(s.messages, msg.ID) != -1 {
			return false
		}
		s.messages = append(s.messages, msg)
		return true
	})
}

// RemoveMessage removes the message with the given id, if present.
func (s *Store) RemoveMessage(id uuid.UUID) bool {
	return s.mutate(func() bool {
		i := indexMessage(s.messages, id)
		if i == -1 {
			return false
		}
		s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
		return true
	})
}

// BeginMessagesLoad tags a message query with the current selection. ok is
// false when no channel is active.
func (s *Store) BeginMessagesLoad() (t Ticket, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Ticket{}, false
	}
	return Ticket{ChannelID: s.current.ID, selection: s.selection}, true
}

// ApplyMessages sets the message set from a query result, unless the
// selection changed since the ticket was issued. It reports whether the
// result was applied.
func (s *Store) ApplyMessages(t Ticket, list []models.Message) bool {
	applied := false
	s.mutate(func() bool {
		if s.current == nil || s.current.ID != t.ChannelID || s.selection != t.selection {
			return false
		}
		s.setMessagesLocked(list)
		applied = true
		return true
	})
	if !applied {
		s.logger.Debug().Str("channel_id", t.ChannelID.String()).Msg("discarding stale messages result")
	}
	return applied
}
