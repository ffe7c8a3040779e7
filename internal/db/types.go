package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUsernameTaken is returned by CreateUser when the username exists.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrRegistrationClosed is returned by BootstrapAdmin once an account exists.
	ErrRegistrationClosed = errors.New("registration is closed")
	// ErrUserNotFound is returned by mutations on a missing account.
	ErrUserNotFound = errors.New("user not found")
)

// User represents an account
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProviderSettings are the stored order-provider credentials of a user.
// Secret fields hold ciphertext produced by secrets.Box.
type ProviderSettings struct {
	UserID                    uuid.UUID
	Email                     string
	PasswordEncrypted         string
	OTPSecretEncrypted        string
	ScheduledIngestionEnabled bool
}
