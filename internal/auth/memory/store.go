// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.AccountStore.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/auth"
)

// AccountStore keeps accounts in memory, keyed by ID with an email index.
// Callers always receive copies.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new account.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[account.Email]; exists {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("email", account.Email).
			Wrap(auth.ErrDuplicate)
	}
	if _, exists := s.byID[account.ID]; exists {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("id", account.ID.String()).
			Wrap(auth.ErrDuplicate)
	}

	stored := account.Clone()
	stored.Version = 1
	s.byID[account.ID] = stored
	s.byEmail[account.Email] = account.ID
	account.Version = stored.Version
	return nil
}

// FindByEmail retrieves an account by email.
func (s *AccountStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

// FindByID retrieves an account by ID.
func (s *AccountStore) FindByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return account.Clone(), nil
}

// Save replaces the account if its version matches the stored one.
func (s *AccountStore) Save(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	if current.Version != account.Version {
		return oops.Code("ACCOUNT_VERSION_CONFLICT").
			With("id", account.ID.String()).
			With("expected", account.Version).
			With("actual", current.Version).
			Wrap(auth.ErrVersionConflict)
	}

	stored := account.Clone()
	// Email is immutable.
	stored.Email = current.Email
	stored.Version = current.Version + 1
	s.byID[account.ID] = stored
	account.Version = stored.Version
	return nil
}

// List returns every account ordered by creation time, then ID.
func (s *AccountStore) List(_ context.Context) ([]*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]*auth.Account, 0, len(s.byID))
	for _, account := range s.byID {
		accounts = append(accounts, account.Clone())
	}
	slices.SortFunc(accounts, func(a, b *auth.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return accounts, nil
}

// DeleteAll removes every account.
func (s *AccountStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(len(s.byID))
	s.byID = make(map[ulid.ULID]*auth.Account)
	s.byEmail = make(map[string]ulid.ULID)
	return count, nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ auth.AccountStore = (*AccountStore)(nil)
