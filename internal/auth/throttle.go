// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"
)

// Code and token lifetimes.
const (
	// DefaultThrottleWindow is how long a resend blocks further resends.
	DefaultThrottleWindow = 10 * time.Minute

	// DefaultVerificationTTL bounds the token returned by register.
	DefaultVerificationTTL = 10 * time.Minute

	// DefaultResendTTL bounds the token returned by a resend.
	DefaultResendTTL = 15 * time.Minute

	// DefaultResetTTL bounds the forgot-password and reset tokens.
	DefaultResetTTL = 10 * time.Minute

	// DefaultSessionTTL bounds session tokens.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// ThrottleResult describes whether a new code may be issued.
type ThrottleResult struct {
	// Throttled indicates a code was issued within the window.
	Throttled bool

	// Remaining is the time until another code may be requested.
	Remaining time.Duration
}

// CheckThrottle evaluates the throttle marker against now.
func CheckThrottle(expiry *time.Time, now time.Time) ThrottleResult {
	if !IsThrottled(expiry, now) {
		return ThrottleResult{}
	}
	return ThrottleResult{Throttled: true, Remaining: expiry.Sub(now)}
}

// IsThrottled returns true if the marker is set and still in the future.
func IsThrottled(expiry *time.Time, now time.Time) bool {
	return expiry != nil && expiry.After(now)
}

// ComputeThrottleExpiry returns the marker to store when a code is resent.
func ComputeThrottleExpiry(now time.Time, window time.Duration) *time.Time {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	exp := now.Add(window)
	return &exp
}
