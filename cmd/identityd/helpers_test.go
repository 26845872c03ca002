// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/auth/memory"
	"github.com/holomush/identity/internal/config"
)

var testSigningKey = strings.Repeat("s", auth.MinSigningKeyLength)

// capturedCodes records every code handed to the notifier.
type capturedCodes struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func (c *capturedCodes) SendVerificationCode(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verification[email] = code
	return nil
}

func (c *capturedCodes) SendResetCode(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset[email] = code
	return nil
}

type cliHarness struct {
	t        *testing.T
	deps     *Deps
	accounts *memory.AccountStore
	codes    *capturedCodes
	cfg      config.Config
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()

	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	h := &cliHarness{
		t:        t,
		accounts: memory.NewAccountStore(),
		codes: &capturedCodes{
			verification: make(map[string]string),
			reset:        make(map[string]string),
		},
	}
	h.cfg = config.Default()
	h.cfg.DatabaseURL = "postgres://identity@localhost/identity"
	h.cfg.SigningKey = testSigningKey
	h.cfg.BcryptCost = bcrypt.MinCost

	h.deps = &Deps{
		ConfigLoader: func(string, *pflag.FlagSet) (*config.Config, error) {
			cfg := h.cfg
			return &cfg, nil
		},
		StoreFactory: func(context.Context, *config.Config, *slog.Logger) (auth.AccountStore, func(), error) {
			return h.accounts, func() {}, nil
		},
		NotifierFactory: func(*config.Config, io.Writer, *slog.Logger) (auth.Notifier, error) {
			return h.codes, nil
		},
	}
	return h
}

// run executes identityd with args and returns stdout, stderr and the error.
func (h *cliHarness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	cmd := newRootCmd(h.deps)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// runJSON executes an account command and decodes its JSON result.
func (h *cliHarness) runJSON(args ...string) (map[string]any, error) {
	h.t.Helper()
	stdout, _, err := h.run("", args...)
	var out map[string]any
	require.NoError(h.t, json.Unmarshal([]byte(stdout), &out), "stdout: %q", stdout)
	return out, err
}

func (h *cliHarness) mustToken(args ...string) string {
	h.t.Helper()
	out, err := h.runJSON(args...)
	require.NoError(h.t, err, "%v", out)
	require.Equal(h.t, true, out["ok"])
	token, ok := out["token"].(string)
	require.True(h.t, ok, "missing token in %v", out)
	return token
}

func (h *cliHarness) verificationCode(email string) string {
	h.codes.mu.Lock()
	defer h.codes.mu.Unlock()
	return h.codes.verification[email]
}

func (h *cliHarness) resetCode(email string) string {
	h.codes.mu.Lock()
	defer h.codes.mu.Unlock()
	return h.codes.reset[email]
}
