// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// Store sentinels. Repository implementations wrap these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when creating an account whose email is already taken.
	ErrDuplicate = errors.New("duplicate")

	// ErrVersionConflict is returned by AccountStore.Save when the stored
	// version no longer matches the version that was read.
	ErrVersionConflict = errors.New("version conflict")
)

// Kind classifies a failed operation for callers.
type Kind string

// Failure kinds surfaced by Service.
const (
	KindConflict           Kind = "CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindCodeMismatch       Kind = "CODE_MISMATCH"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindNotVerified        Kind = "NOT_VERIFIED"
	KindWeakCredential     Kind = "WEAK_CREDENTIAL"
	KindTooManyRequests    Kind = "TOO_MANY_REQUESTS"
	KindAlreadyVerified    Kind = "ALREADY_VERIFIED"
	KindInternal           Kind = "INTERNAL"
)

var kindMessages = map[Kind]string{
	KindConflict:           "an account with this email already exists",
	KindNotFound:           "account not found",
	KindUnauthorized:       "invalid or expired token",
	KindCodeMismatch:       "invalid verification code",
	KindInvalidCredentials: "invalid email or password",
	KindNotVerified:        "please verify your email before logging in",
	KindWeakCredential:     fmt.Sprintf("password must be %d to %d characters", MinPasswordLength, MaxPasswordLength),
	KindTooManyRequests:    "please wait before requesting a new code",
	KindAlreadyVerified:    "email is already verified",
	KindInternal:           "internal error",
}

// Message returns the public, human-readable message for a kind.
func Message(kind Kind) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return kindMessages[KindInternal]
}

// KindOf maps any error to its Kind. Errors that do not carry a known kind
// code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	kind := Kind(fmt.Sprint(oopsErr.Code()))
	if _, known := kindMessages[kind]; known {
		return kind
	}
	return KindInternal
}

// newKindError builds a domain error carrying kind as its oops code.
func newKindError(kind Kind, operation string) error {
	return oops.Code(string(kind)).With("operation", operation).Errorf("%s", Message(kind))
}

// throttledError is TOO_MANY_REQUESTS carrying the wait until the next attempt.
func throttledError(operation string, retryAfter time.Duration) error {
	return oops.Code(string(KindTooManyRequests)).
		With("operation", operation).
		With("retry_after", retryAfter).
		Errorf("%s", Message(KindTooManyRequests))
}

// RetryAfter returns how long a throttled caller should wait, if err says.
func RetryAfter(err error) (time.Duration, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	d, ok := oopsErr.Context()["retry_after"].(time.Duration)
	return d, ok
}

// internalError wraps an infrastructure failure as an INTERNAL error.
func internalError(operation string, err error) error {
	return oops.Code(string(KindInternal)).With("operation", operation).Wrap(err)
}
