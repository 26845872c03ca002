// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the account lifecycle for identityd.
//
// # Lifecycle
//
// An account is registered unverified and proves ownership of its email
// with a six-digit code. A verified account can log in, and a forgotten
// password is replaced through a second code delivered the same way:
//   - Register, Verify, ResendVerificationCode - email ownership
//   - Login, ValidateSession - session tokens
//   - ForgotPassword, VerifyResetCode, ResetPassword - password reset
//
// Pending codes and their expiry live on the account record itself, so a
// new code always replaces the previous one.
//
// # Tokens
//
// Every flow hands the caller a signed token scoped to one purpose. A token
// issued for one purpose is rejected by every other operation.
//
// # Collaborators
//
// Service is built by NewService from an AccountStore, a PasswordHasher, a
// TokenService and a Notifier. Errors returned to callers carry a Kind; see
// KindOf.
package auth
