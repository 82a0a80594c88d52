package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel represents a chat channel.
type Channel struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Owner     User      `json:"user"` // Copy of the owner at creation time
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
