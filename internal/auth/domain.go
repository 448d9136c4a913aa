package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated user account.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	PasswordHash     string     `json:"-"`
	IsActive         bool       `json:"-"`
	DefaultCarrierID *uuid.UUID `json:"defaultCarrierId"`
	CreatedAt        time.Time  `json:"-"`
}
