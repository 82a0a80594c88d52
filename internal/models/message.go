package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message posted to a channel.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	ChannelID uuid.UUID `json:"channelId"`
	Author    User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
