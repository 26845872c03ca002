// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides a PostgreSQL-backed auth.AccountStore.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/auth"
)

// PoolIface is the subset of *pgxpool.Pool the repository uses.
// pgxmock.PgxPoolIface satisfies it in tests.
type PoolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, name, phone, email, credential_hash, state,
	pending_code, pending_code_expiry, version, created_at, updated_at`

// AccountRepository implements auth.AccountStore using PostgreSQL.
type AccountRepository struct {
	pool PoolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool PoolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account at version 1.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`,
		account.ID.String(),
		account.Name,
		account.Phone,
		account.Email,
		account.CredentialHash,
		string(account.State),
		account.PendingCode,
		account.PendingCodeExpiry,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("email", account.Email).
			Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	account.Version = 1
	return nil
}

// FindByEmail retrieves an account by normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// Save writes every mutable column when the stored version matches
// account.Version. Email is never rewritten.
func (r *AccountRepository) Save(ctx context.Context, account *auth.Account) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			name = $3,
			phone = $4,
			credential_hash = $5,
			state = $6,
			pending_code = $7,
			pending_code_expiry = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		account.ID.String(),
		account.Version,
		account.Name,
		account.Phone,
		account.CredentialHash,
		string(account.State),
		account.PendingCode,
		account.PendingCodeExpiry,
		account.UpdatedAt,
	)
	if err != nil {
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 1 {
		account.Version++
		return nil
	}

	// Zero rows: the account is gone or someone else saved first.
	var current int64
	err = r.pool.QueryRow(ctx, `SELECT version FROM accounts WHERE id = $1`, account.ID.String()).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "read current version").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return oops.Code("ACCOUNT_VERSION_CONFLICT").
		With("id", account.ID.String()).
		With("expected", account.Version).
		With("actual", current).
		Wrap(auth.ErrVersionConflict)
}

// List returns every account, oldest first.
func (r *AccountRepository) List(ctx context.Context) ([]*auth.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").
			With("operation", "list accounts").
			Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_ROWS_ERROR").
			With("operation", "iterate account rows").
			Wrap(err)
	}
	return accounts, nil
}

// DeleteAll removes every account.
func (r *AccountRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts`)
	if err != nil {
		return 0, oops.Code("ACCOUNT_PURGE_FAILED").
			With("operation", "delete accounts").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr   string
		state   string
		account auth.Account
	)

	err := row.Scan(
		&idStr,
		&account.Name,
		&account.Phone,
		&account.Email,
		&account.CredentialHash,
		&state,
		&account.PendingCode,
		&account.PendingCodeExpiry,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	account.ID = id

	account.State = auth.State(state)
	if !account.State.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_STATE").
			With("id", idStr).
			With("state", state).
			Errorf("unknown account state %q", state)
	}

	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	if account.PendingCodeExpiry != nil {
		utc := account.PendingCodeExpiry.In(time.UTC)
		account.PendingCodeExpiry = &utc
	}
	return &account, nil
}

var _ auth.AccountStore = (*AccountRepository)(nil)
