// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/identity/internal/auth"
)

// TestingT is the subset of testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockAccountStore is a mock of auth.AccountStore.
type MockAccountStore struct {
	mock.Mock
}

// NewMockAccountStore creates a MockAccountStore that asserts its expectations on cleanup.
func NewMockAccountStore(t TestingT) *MockAccountStore {
	m := &MockAccountStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockAccountStore) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// FindByEmail provides a mock function.
func (m *MockAccountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	if fn, ok := args.Get(0).(func(context.Context, string) (*auth.Account, error)); ok {
		return fn(ctx, email)
	}
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// FindByID provides a mock function.
func (m *MockAccountStore) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// Save provides a mock function.
func (m *MockAccountStore) Save(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// List provides a mock function.
func (m *MockAccountStore) List(ctx context.Context) ([]*auth.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auth.Account), args.Error(1)
}

// DeleteAll provides a mock function.
func (m *MockAccountStore) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotifier is a mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier that asserts its expectations on cleanup.
func NewMockNotifier(t TestingT) *MockNotifier {
	m := &MockNotifier{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// SendVerificationCode provides a mock function.
func (m *MockNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	args := m.Called(ctx, email, code)
	return args.Error(0)
}

// SendResetCode provides a mock function.
func (m *MockNotifier) SendResetCode(ctx context.Context, email, code string) error {
	args := m.Called(ctx, email, code)
	return args.Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify provides a mock function.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade provides a mock function.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// MockTokenService is a mock of auth.TokenService.
type MockTokenService struct {
	mock.Mock
}

// NewMockTokenService creates a MockTokenService that asserts its expectations on cleanup.
func NewMockTokenService(t TestingT) *MockTokenService {
	m := &MockTokenService{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Issue provides a mock function.
func (m *MockTokenService) Issue(claim string, purpose auth.Purpose, ttl time.Duration) (string, error) {
	args := m.Called(claim, purpose, ttl)
	return args.String(0), args.Error(1)
}

// Verify provides a mock function.
func (m *MockTokenService) Verify(token string, purpose auth.Purpose) (string, error) {
	args := m.Called(token, purpose)
	return args.String(0), args.Error(1)
}

// VerifyIgnoringExpiry provides a mock function.
func (m *MockTokenService) VerifyIgnoringExpiry(token string, purpose auth.Purpose) (string, error) {
	args := m.Called(token, purpose)
	return args.String(0), args.Error(1)
}

var (
	_ auth.AccountStore   = (*MockAccountStore)(nil)
	_ auth.Notifier       = (*MockNotifier)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.TokenService   = (*MockTokenService)(nil)
)
