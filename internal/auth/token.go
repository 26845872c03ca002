// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Purpose binds a token to the single flow that may consume it.
type Purpose string

// Token purposes.
const (
	PurposeEmailVerification    Purpose = "email_verification"
	PurposePasswordResetRequest Purpose = "password_reset_request"
	PurposePasswordReset        Purpose = "password_reset"
	PurposeSession              Purpose = "session"
)

// MinSigningKeyLength is the minimum HMAC key size in bytes.
const MinSigningKeyLength = 32

// Token verification failures.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenPurposeMismatch  = errors.New("token purpose mismatch")
	ErrTokenIssuerMismatch   = errors.New("token issuer mismatch")
)

// TokenService issues and verifies purpose-bound bearer tokens.
// TokenIssuer is the production implementation.
type TokenService interface {
	Issue(claim string, purpose Purpose, ttl time.Duration) (string, error)
	Verify(token string, purpose Purpose) (string, error)
	VerifyIgnoringExpiry(token string, purpose Purpose) (string, error)
}

var _ TokenService = (*TokenIssuer)(nil)

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
}

// TokenOption customizes a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the clock used for iat/exp and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// tokenClaims shadows the registered exp claim with a nanosecond-precision
// date. jwt.NumericDate truncates to whole seconds and decodes through
// float64, which would end a token before its full lifetime.
type tokenClaims struct {
	Purpose Purpose     `json:"purpose"`
	Expiry  numericDate `json:"exp"`
	jwt.RegisteredClaims
}

// numericDate is a JWT NumericDate encoded as seconds with a nine-digit
// fraction and decoded without floating point.
type numericDate struct {
	time.Time
}

func (d numericDate) MarshalJSON() ([]byte, error) {
	return fmt.Appendf(nil, "%d.%09d", d.Unix(), d.Nanosecond()), nil
}

func (d *numericDate) UnmarshalJSON(b []byte) error {
	secs, frac, _ := strings.Cut(string(b), ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return err
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		if nsec, err = strconv.ParseInt(frac, 10, 64); err != nil || nsec < 0 {
			return ErrTokenMalformed
		}
	}
	d.Time = time.Unix(sec, nsec).UTC()
	return nil
}

// TokenIssuer issues and verifies HS256 bearer tokens.
type TokenIssuer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. The signing key must be at least
// MinSigningKeyLength bytes.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, oops.Code("TOKEN_KEY_TOO_SHORT").
			With("length", len(cfg.SigningKey)).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	t := &TokenIssuer{key: key, issuer: cfg.Issuer, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue mints a token for claim, valid for ttl and only for purpose.
func (t *TokenIssuer) Issue(claim string, purpose Purpose, ttl time.Duration) (string, error) {
	if claim == "" {
		return "", oops.Code("TOKEN_EMPTY_CLAIM").Errorf("token claim cannot be empty")
	}
	if ttl <= 0 {
		return "", oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl).Errorf("token ttl must be positive")
	}

	now := t.now()
	claims := tokenClaims{
		Purpose: purpose,
		Expiry:  numericDate{now.Add(ttl)},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  claim,
			Issuer:   t.issuer,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("purpose", purpose).Wrap(err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose, and returns the bound claim.
// A token is expired once now reaches its exp.
func (t *TokenIssuer) Verify(token string, purpose Purpose) (string, error) {
	claims, err := t.parse(token)
	if err != nil {
		return "", err
	}
	if claims.Expiry.IsZero() || !t.now().Before(claims.Expiry.Time) {
		return "", ErrTokenExpired
	}
	return checkPurpose(claims, purpose)
}

// VerifyIgnoringExpiry is Verify without the expiry check. Signature and
// purpose are still enforced.
func (t *TokenIssuer) VerifyIgnoringExpiry(token string, purpose Purpose) (string, error) {
	claims, err := t.parse(token)
	if err != nil {
		return "", err
	}
	return checkPurpose(claims, purpose)
}

// parse validates structure, signature and issuer; time checks are done by
// the callers against the injected clock.
func (t *TokenIssuer) parse(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenSignatureInvalid
			}
			return t.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenSignatureInvalid
		}
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrTokenIssuerMismatch
	}
	return claims, nil
}

func checkPurpose(claims *tokenClaims, purpose Purpose) (string, error) {
	if claims.Purpose != purpose {
		return "", ErrTokenPurposeMismatch
	}
	return claims.Subject, nil
}
