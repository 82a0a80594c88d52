package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a chatik account as returned by the API.
type User struct {
	ID         uuid.UUID `json:"id"`
	Nickname   string    `json:"nickname"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
