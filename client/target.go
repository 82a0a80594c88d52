package client

import (
	"github.com/google/uuid"

	"github.com/protomem/chatik/internal/api"
	"github.com/protomem/chatik/internal/models"
	"github.com/protomem/chatik/internal/state"
)

// streamTarget applies stream events to the store and drops the query cache
// entries they make stale.
type streamTarget struct {
	store *state.Store
	api   *api.Client
}

func (t streamTarget) AddMessage(msg models.Message) bool {
	t.api.InvalidateMessages(msg.ChannelID)
	return t.store.AddMessage(msg)
}

// RemoveMessage events carry no channel id.
func (t streamTarget) RemoveMessage(id uuid.UUID) bool {
	t.api.InvalidateMessages(uuid.Nil)
	return t.store.RemoveMessage(id)
}

func (t streamTarget) AddChannel(ch models.Channel) bool {
	t.api.InvalidateChannels()
	return t.store.AddChannel(ch)
}

// InvalidateChannels also covers the channel's messages.
func (t streamTarget) RemoveChannel(id uuid.UUID) bool {
	t.api.InvalidateChannels()
	return t.store.RemoveChannel(id)
}
