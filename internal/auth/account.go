// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Accepted password lengths, in characters.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// State is the verification state of an account.
type State string

// Account states. Transitions are Unverified -> Verified only.
const (
	StateUnverified State = "unverified"
	StateVerified   State = "verified"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s == StateUnverified || s == StateVerified
}

// Account is a registered identity and its outstanding challenge, if any.
type Account struct {
	ID             ulid.ULID
	Name           string
	Phone          string
	Email          string
	CredentialHash string
	State          State

	// PendingCode is set while a verification or reset challenge is outstanding.
	PendingCode *string
	// PendingCodeExpiry throttles resends; nil or past means a resend is allowed.
	PendingCodeExpiry *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsVerified returns true once the email has been confirmed.
func (a *Account) IsVerified() bool {
	return a.State == StateVerified
}

// HasPendingCode returns true if a challenge is outstanding.
func (a *Account) HasPendingCode() bool {
	return a.PendingCode != nil && *a.PendingCode != ""
}

// setPendingCode replaces the outstanding challenge. A nil expiry leaves the
// throttle marker untouched.
func (a *Account) setPendingCode(code string, expiry *time.Time) {
	a.PendingCode = &code
	if expiry != nil {
		a.PendingCodeExpiry = expiry
	}
}

// clearPendingCode removes the challenge and the throttle marker.
func (a *Account) clearPendingCode() {
	a.PendingCode = nil
	a.PendingCodeExpiry = nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (a *Account) Clone() *Account {
	c := *a
	if a.PendingCode != nil {
		code := *a.PendingCode
		c.PendingCode = &code
	}
	if a.PendingCodeExpiry != nil {
		exp := *a.PendingCodeExpiry
		c.PendingCodeExpiry = &exp
	}
	return &c
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword reports whether password length is within bounds.
func ValidatePassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= MinPasswordLength && n <= MaxPasswordLength
}

// AccountStore persists accounts.
type AccountStore interface {
	// Create stores a new account. Returns an error wrapping ErrDuplicate if
	// the email is already registered.
	Create(ctx context.Context, account *Account) error

	// FindByEmail retrieves an account by normalized email.
	// Returns an error wrapping ErrNotFound if none exists.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByID retrieves an account by ID.
	// Returns an error wrapping ErrNotFound if none exists.
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// Save writes account if the stored version still equals account.Version,
	// then increments account.Version. Returns an error wrapping
	// ErrVersionConflict on a lost update and ErrNotFound if the account is gone.
	Save(ctx context.Context, account *Account) error

	// List returns every account, oldest first.
	List(ctx context.Context) ([]*Account, error)

	// DeleteAll removes every account and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
}
