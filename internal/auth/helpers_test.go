// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/auth/memory"
)

// fakeClock is a settable, goroutine-safe clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentCode struct {
	Email string
	Code  string
}

// recordingNotifier remembers every delivered code.
type recordingNotifier struct {
	mu           sync.Mutex
	verification []sentCode
	reset        []sentCode
	err          error
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.verification = append(n.verification, sentCode{Email: email, Code: code})
	return nil
}

func (n *recordingNotifier) SendResetCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reset = append(n.reset, sentCode{Email: email, Code: code})
	return nil
}

func (n *recordingNotifier) lastVerification(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.verification, "no verification code delivered")
	return n.verification[len(n.verification)-1].Code
}

func (n *recordingNotifier) lastReset(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.reset, "no reset code delivered")
	return n.reset[len(n.reset)-1].Code
}

func (n *recordingNotifier) verificationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.verification)
}

// harness wires a Service to the in-memory store, a fake clock and a
// recording notifier.
type harness struct {
	svc      *auth.Service
	store    *memory.AccountStore
	notifier *recordingNotifier
	clock    *fakeClock
	tokens   *auth.TokenIssuer
}

func newHarness(t *testing.T, opts ...auth.Option) *harness {
	t.Helper()

	clock := newFakeClock()
	store := memory.NewAccountStore()
	notifier := &recordingNotifier{}

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{SigningKey: testSigningKey}, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	base := []auth.Option{
		auth.WithClock(clock.Now),
		auth.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	svc, err := auth.NewService(store, notifier, hasher, tokens, append(base, opts...)...)
	require.NoError(t, err)

	return &harness{svc: svc, store: store, notifier: notifier, clock: clock, tokens: tokens}
}

// register creates an account and returns its verification token.
func (h *harness) register(t *testing.T, email, password string) string {
	t.Helper()
	token, err := h.svc.Register(context.Background(), auth.Registration{
		Name:     "Ava",
		Email:    email,
		Phone:    "5551234",
		Password: password,
	})
	require.NoError(t, err)
	return token
}

// registerVerified creates and verifies an account.
func (h *harness) registerVerified(t *testing.T, email, password string) {
	t.Helper()
	token := h.register(t, email, password)
	require.NoError(t, h.svc.Verify(context.Background(), token, h.notifier.lastVerification(t)))
}

// sequentialCodes hands out codes in order, one per call.
func sequentialCodes(codes ...string) func(int) (string, error) {
	var mu sync.Mutex
	next := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(codes) {
			return "", errors.New("code sequence exhausted")
		}
		code := codes[next]
		next++
		return code, nil
	}
}
