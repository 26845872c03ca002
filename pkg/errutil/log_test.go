// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogErrorContext_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("ACCOUNT_SAVE_FAILED").
		With("operation", "update account").
		Errorf("connection reset")

	errutil.LogErrorContext(context.Background(), logger, "verify failed", err)

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "verify failed", entry["msg"])
	assert.Equal(t, "ACCOUNT_SAVE_FAILED", entry["code"])
	errCtx, ok := entry["context"].(map[string]any)
	require.True(t, ok, "context should be an object")
	assert.Equal(t, "update account", errCtx["operation"])
}

func TestLogErrorContext_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogErrorContext(context.Background(), logger, "purge failed", errors.New("standard error"))

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "standard error", entry["error"])
	assert.NotContains(t, entry, "code")
}

type ctxKey struct{}

// ctxHandler records the context value seen by Handle.
type ctxHandler struct {
	slog.Handler
	seen any
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	h.seen = ctx.Value(ctxKey{})
	return h.Handler.Handle(ctx, r)
}

func TestLogErrorContext_PassesContext(t *testing.T) {
	var buf bytes.Buffer
	h := &ctxHandler{Handler: slog.NewJSONHandler(&buf, nil)}
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-7")

	errutil.LogErrorContext(ctx, slog.New(h), "login failed", oops.Errorf("boom"))

	assert.Equal(t, "request-7", h.seen)
	assert.Equal(t, "login failed", decode(t, &buf)["msg"])
}
