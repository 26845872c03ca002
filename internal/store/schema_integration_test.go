// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/identity/internal/store"
)

const insertAccount = `INSERT INTO accounts (id, email, credential_hash) VALUES ($1, $2, 'hash')`

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ = Describe("accounts schema", Ordered, func() {
	var (
		ctx     context.Context
		pool    *pgxpool.Pool
		cleanup func()
	)

	BeforeAll(func() {
		ctx = context.Background()
		connStr, stop, err := runPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
		cleanup = stop

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.OpenPool(ctx, connStr, store.PoolOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if cleanup != nil {
			cleanup()
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `DELETE FROM accounts`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("starts accounts unverified at version 1", func() {
		_, err := pool.Exec(ctx, insertAccount, "01HZ0000000000000000000001", "ada@example.com")
		Expect(err).NotTo(HaveOccurred())

		var state string
		var version int64
		err = pool.QueryRow(ctx, `SELECT state, version FROM accounts WHERE email = $1`, "ada@example.com").
			Scan(&state, &version)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal("unverified"))
		Expect(version).To(Equal(int64(1)))
	})

	It("rejects a second account with the same email", func() {
		_, err := pool.Exec(ctx, insertAccount, "01HZ0000000000000000000001", "ada@example.com")
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, insertAccount, "01HZ0000000000000000000002", "ada@example.com")
		Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))
	})

	It("rejects emails that are not normalized", func() {
		_, err := pool.Exec(ctx, insertAccount, "01HZ0000000000000000000003", " Ada@Example.com")
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("rejects unknown states", func() {
		_, err := pool.Exec(ctx,
			`INSERT INTO accounts (id, email, credential_hash, state) VALUES ($1, $2, 'hash', 'locked')`,
			"01HZ0000000000000000000004", "bob@example.com")
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})
})
