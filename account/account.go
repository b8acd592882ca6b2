// Package account defines the durable account record and its storage
// contract. Concrete stores live in subpackages; MemStore here backs
// tests and single-process setups.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when no account matches the lookup key.
var ErrNotFound = errors.New("account not found")

// ErrDuplicate is returned when a create collides with an existing
// account on the normalized email.
var ErrDuplicate = errors.New("account already exists")

// Profile carries the optional descriptive fields captured at
// registration. All fields may be empty.
type Profile struct {
	FirstName string
	LastName  string
	Phone     string
	Company   string
}

// Account is one user account. Email is stored normalized and is the
// unique natural key. PasswordHash is an argon2id PHC string; the
// plaintext password never reaches storage.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	Disabled     bool
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail lowercases and trims an address so lookups and the
// uniqueness constraint agree on a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store is the persistence contract for accounts. Implementations must
// enforce email uniqueness on the normalized form and return
// [ErrDuplicate] on collision.
type Store interface {
	// Create persists a new account. The caller sets ID and timestamps.
	Create(ctx context.Context, a *Account) error
	// FindByEmail looks up by normalized email.
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// FindByID looks up by account ID.
	FindByID(ctx context.Context, id string) (*Account, error)
	// SetVerified flips the verified flag.
	SetVerified(ctx context.Context, id string, verified bool) error
	// UpdatePasswordHash replaces the stored credential.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// SetDisabled flips the disabled flag.
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
