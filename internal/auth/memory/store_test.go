// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/auth/memory"
	"github.com/holomush/identity/pkg/errutil"
)

func newAccount(email string) *auth.Account {
	code := "123456"
	now := time.Now()
	return &auth.Account{
		ID:             ulid.Make(),
		Name:           "Ava",
		Email:          email,
		CredentialHash: "hash",
		State:          auth.StateUnverified,
		PendingCode:    &code,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestAccountStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and assigns version", func(t *testing.T) {
		store := memory.NewAccountStore()
		account := newAccount("ava@example.com")

		require.NoError(t, store.Create(ctx, account))
		assert.Equal(t, int64(1), account.Version)

		found, err := store.FindByEmail(ctx, "ava@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, found.ID)
		assert.Equal(t, int64(1), found.Version)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		store := memory.NewAccountStore()
		require.NoError(t, store.Create(ctx, newAccount("ava@example.com")))

		err := store.Create(ctx, newAccount("ava@example.com"))
		assert.ErrorIs(t, err, auth.ErrDuplicate)
		errutil.AssertErrorCode(t, err, "ACCOUNT_DUPLICATE")
		assert.Equal(t, 1, store.Len())
	})
}

func TestAccountStore_Find(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	account := newAccount("ava@example.com")
	require.NoError(t, store.Create(ctx, account))

	t.Run("by id", func(t *testing.T) {
		found, err := store.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "ava@example.com", found.Email)
	})

	t.Run("missing email", func(t *testing.T) {
		_, err := store.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := store.FindByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("returns copies", func(t *testing.T) {
		found, err := store.FindByID(ctx, account.ID)
		require.NoError(t, err)
		*found.PendingCode = "999999"
		found.Name = "changed"

		again, err := store.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "123456", *again.PendingCode)
		assert.Equal(t, "Ava", again.Name)
	})
}

func TestAccountStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("increments version", func(t *testing.T) {
		store := memory.NewAccountStore()
		account := newAccount("ava@example.com")
		require.NoError(t, store.Create(ctx, account))

		account.State = auth.StateVerified
		require.NoError(t, store.Save(ctx, account))
		assert.Equal(t, int64(2), account.Version)

		found, err := store.FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, found.IsVerified())
	})

	t.Run("detects lost update", func(t *testing.T) {
		store := memory.NewAccountStore()
		require.NoError(t, store.Create(ctx, newAccount("ava@example.com")))

		first, err := store.FindByEmail(ctx, "ava@example.com")
		require.NoError(t, err)
		second, err := store.FindByEmail(ctx, "ava@example.com")
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, first))
		err = store.Save(ctx, second)
		assert.ErrorIs(t, err, auth.ErrVersionConflict)
		errutil.AssertErrorCode(t, err, "ACCOUNT_VERSION_CONFLICT")
	})

	t.Run("missing account", func(t *testing.T) {
		store := memory.NewAccountStore()
		err := store.Save(ctx, newAccount("ava@example.com"))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("email is immutable", func(t *testing.T) {
		store := memory.NewAccountStore()
		account := newAccount("ava@example.com")
		require.NoError(t, store.Create(ctx, account))

		account.Email = "other@example.com"
		require.NoError(t, store.Save(ctx, account))

		_, err := store.FindByEmail(ctx, "other@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		found, err := store.FindByEmail(ctx, "ava@example.com")
		require.NoError(t, err)
		assert.Equal(t, "ava@example.com", found.Email)
	})
}

func TestAccountStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	require.NoError(t, store.Create(ctx, newAccount("a@example.com")))
	require.NoError(t, store.Create(ctx, newAccount("b@example.com")))

	count, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Zero(t, store.Len())

	// Email can be registered again.
	require.NoError(t, store.Create(ctx, newAccount("a@example.com")))
}

func TestAccountStore_List(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()

	accounts, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	older := newAccount("older@example.com")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newAccount("newer@example.com")
	require.NoError(t, store.Create(ctx, newer))
	require.NoError(t, store.Create(ctx, older))

	accounts, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "older@example.com", accounts[0].Email)
	assert.Equal(t, "newer@example.com", accounts[1].Email)

	// Listed accounts are copies.
	accounts[0].Name = "changed"
	found, err := store.FindByEmail(ctx, "older@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ava", found.Name)
}
