// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides assertions for auth service errors.
package authtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/internal/auth"
)

// AssertKind asserts that err is non-nil and classified as kind.
func AssertKind(t *testing.T, err error, kind auth.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, auth.KindOf(err), "error: %v", err)
}

// AssertRetryAfter asserts that err is TOO_MANY_REQUESTS and tells the caller
// to wait exactly want.
func AssertRetryAfter(t *testing.T, err error, want time.Duration) {
	t.Helper()
	AssertKind(t, err, auth.KindTooManyRequests)
	got, ok := auth.RetryAfter(err)
	require.True(t, ok, "throttle error carries no retry_after")
	assert.Equal(t, want, got)
}
