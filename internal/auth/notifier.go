// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Notifier delivers one-time codes out of band.
type Notifier interface {
	// SendVerificationCode delivers an email verification code.
	SendVerificationCode(ctx context.Context, email, code string) error

	// SendResetCode delivers a password reset code.
	SendResetCode(ctx context.Context, email, code string) error
}
