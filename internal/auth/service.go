// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/identity/pkg/errutil"
)

// Operation names used in logs, metrics and error context.
const (
	OpRegister        = "register"
	OpVerify          = "verify"
	OpLogin           = "login"
	OpForgotPassword  = "forgot_password"
	OpVerifyResetCode = "verify_reset_code"
	OpResetPassword   = "reset_password"
	OpResendCode      = "resend_verification_code"
	OpValidateSession = "validate_session"
	OpList            = "list_accounts"
	OpPurge           = "purge_accounts"
)

// Default bounds for the lost-update retry loop.
const (
	DefaultConflictRetries = 3
	DefaultConflictBackoff = 10 * time.Millisecond
)

// Lifetimes holds token lifetimes per flow.
type Lifetimes struct {
	Verification time.Duration
	Resend       time.Duration
	Reset        time.Duration
	Session      time.Duration
}

// DefaultLifetimes returns the standard token lifetimes.
func DefaultLifetimes() Lifetimes {
	return Lifetimes{
		Verification: DefaultVerificationTTL,
		Resend:       DefaultResendTTL,
		Reset:        DefaultResetTTL,
		Session:      DefaultSessionTTL,
	}
}

// Registration holds the inputs to Register.
type Registration struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger is rejected by NewService.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics records operation outcomes to m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the clock used for timestamps and throttling.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLifetimes overrides token lifetimes. Zero fields keep their defaults.
func WithLifetimes(l Lifetimes) Option {
	return func(s *Service) {
		if l.Verification > 0 {
			s.lifetimes.Verification = l.Verification
		}
		if l.Resend > 0 {
			s.lifetimes.Resend = l.Resend
		}
		if l.Reset > 0 {
			s.lifetimes.Reset = l.Reset
		}
		if l.Session > 0 {
			s.lifetimes.Session = l.Session
		}
	}
}

// WithThrottleWindow overrides how long a resend blocks further resends.
func WithThrottleWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.throttleWindow = d
		}
	}
}

// WithConflictRetries bounds how often a lost update is retried.
func WithConflictRetries(retries uint64, backoff time.Duration) Option {
	return func(s *Service) {
		s.conflictRetries = retries
		if backoff > 0 {
			s.conflictBackoff = backoff
		}
	}
}

// WithCodeGenerator replaces the one-time code source.
func WithCodeGenerator(gen func(length int) (string, error)) Option {
	return func(s *Service) {
		s.generateCode = gen
	}
}

// Service drives the account verification and credential lifecycle.
type Service struct {
	accounts AccountStore
	notifier Notifier
	hasher   PasswordHasher
	tokens   TokenService
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	lifetimes       Lifetimes
	throttleWindow  time.Duration
	conflictRetries uint64
	conflictBackoff time.Duration
	codeLength      int
	generateCode    func(length int) (string, error)

	// dummyHash is verified for unknown emails so login timing does not
	// reveal whether an account exists.
	dummyHash string
}

// NewService creates a Service. All dependencies are required.
func NewService(
	accounts AccountStore,
	notifier Notifier,
	hasher PasswordHasher,
	tokens TokenService,
	opts ...Option,
) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("account store is required")
	}
	if notifier == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("notifier is required")
	}
	if hasher == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("token service is required")
	}

	s := &Service{
		accounts:        accounts,
		notifier:        notifier,
		hasher:          hasher,
		tokens:          tokens,
		logger:          slog.Default(),
		now:             time.Now,
		lifetimes:       DefaultLifetimes(),
		throttleWindow:  DefaultThrottleWindow,
		conflictRetries: DefaultConflictRetries,
		conflictBackoff: DefaultConflictBackoff,
		codeLength:      DefaultCodeLength,
		generateCode:    GenerateNumericCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.now == nil || s.generateCode == nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").Errorf("clock and code generator are required")
	}

	dummy, err := newDummyHash(hasher)
	if err != nil {
		return nil, oops.Code("SERVICE_INVALID_CONFIG").With("operation", "dummy hash").Wrap(err)
	}
	s.dummyHash = dummy

	return s, nil
}

func newDummyHash(hasher PasswordHasher) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hasher.Hash(hex.EncodeToString(buf))
}

// Register creates an Unverified account and sends it a verification code.
// Returns a verification token bound to the normalized email.
func (s *Service) Register(ctx context.Context, reg Registration) (token string, err error) {
	defer func() { err = s.finish(ctx, OpRegister, err) }()

	email := NormalizeEmail(reg.Email)
	if !ValidatePassword(reg.Password) {
		return "", newKindError(KindWeakCredential, OpRegister)
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return "", newKindError(KindConflict, OpRegister)
	} else if !errors.Is(err, ErrNotFound) {
		return "", internalError("find account", err)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return "", internalError("hash credential", err)
	}

	code, err := s.generateCode(s.codeLength)
	if err != nil {
		return "", internalError("generate code", err)
	}

	now := s.now()
	account := &Account{
		ID:             ulid.Make(),
		Name:           reg.Name,
		Phone:          reg.Phone,
		Email:          email,
		CredentialHash: hash,
		State:          StateUnverified,
		PendingCode:    &code,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return "", newKindError(KindConflict, OpRegister)
		}
		return "", internalError("create account", err)
	}

	token, err = s.tokens.Issue(email, PurposeEmailVerification, s.lifetimes.Verification)
	if err != nil {
		return "", internalError("issue token", err)
	}

	s.deliver(ctx, OpRegister, "verification", func() error {
		return s.notifier.SendVerificationCode(ctx, email, code)
	})

	return token, nil
}

// Verify confirms an email with the code delivered at registration or resend.
func (s *Service) Verify(ctx context.Context, token, code string) (err error) {
	defer func() { err = s.finish(ctx, OpVerify, err) }()

	email, err := s.tokens.Verify(token, PurposeEmailVerification)
	if err != nil {
		return newKindError(KindUnauthorized, OpVerify)
	}

	_, err = s.mutate(ctx, OpVerify, email, func(a *Account) error {
		if !codesEqual(a.PendingCode, code) {
			return newKindError(KindCodeMismatch, OpVerify)
		}
		a.State = StateVerified
		a.clearPendingCode()
		return nil
	})
	return err
}

// Login checks credentials and returns a session token bound to the account ID.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (token string, err error) {
	defer func() { err = s.finish(ctx, OpLogin, err) }()

	account, lookupErr := s.accounts.FindByEmail(ctx, NormalizeEmail(email))

	targetHash := s.dummyHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = account.CredentialHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return "", internalError("find account", lookupErr)
	}

	// Always verify so response time does not depend on account existence.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if !exists {
		return "", newKindError(KindInvalidCredentials, OpLogin)
	}
	if verifyErr != nil {
		return "", internalError("verify credential", verifyErr)
	}
	if !valid {
		return "", newKindError(KindInvalidCredentials, OpLogin)
	}

	if !account.IsVerified() {
		return "", newKindError(KindNotVerified, OpLogin)
	}

	if s.hasher.NeedsUpgrade(account.CredentialHash) {
		s.rehash(ctx, account, password)
	}

	token, err = s.tokens.Issue(account.ID.String(), PurposeSession, s.lifetimes.Session)
	if err != nil {
		return "", internalError("issue token", err)
	}
	return token, nil
}

// rehash replaces an outdated credential hash. Failures are logged only.
func (s *Service) rehash(ctx context.Context, account *Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort rehash failed",
			"operation", "rehash",
			"error", err.Error())
		return
	}

	verified := account.CredentialHash
	_, err = s.mutate(ctx, "rehash", account.Email, func(a *Account) error {
		// A concurrent reset already replaced the credential.
		if a.CredentialHash != verified {
			return errRehashSuperseded
		}
		a.CredentialHash = hash
		return nil
	})
	switch {
	case err == nil:
		s.metrics.recordRehash()
	case errors.Is(err, errRehashSuperseded):
	default:
		s.logger.WarnContext(ctx, "best-effort rehash failed",
			"operation", "rehash",
			"account_id", account.ID.String(),
			"error", err.Error())
	}
}

var errRehashSuperseded = errors.New("credential changed since verification")

// ForgotPassword replaces the pending code with a reset code and returns a
// reset-request token bound to the email. Unknown emails fail with NotFound.
func (s *Service) ForgotPassword(ctx context.Context, email string) (token string, err error) {
	defer func() { err = s.finish(ctx, OpForgotPassword, err) }()

	email = NormalizeEmail(email)
	code, err := s.generateCode(s.codeLength)
	if err != nil {
		return "", internalError("generate code", err)
	}

	if _, err := s.mutate(ctx, OpForgotPassword, email, func(a *Account) error {
		a.setPendingCode(code, nil)
		return nil
	}); err != nil {
		return "", err
	}

	token, err = s.tokens.Issue(email, PurposePasswordResetRequest, s.lifetimes.Reset)
	if err != nil {
		return "", internalError("issue token", err)
	}

	s.deliver(ctx, OpForgotPassword, "reset", func() error {
		return s.notifier.SendResetCode(ctx, email, code)
	})

	return token, nil
}

// VerifyResetCode exchanges a reset-request token and the delivered code for
// a password-reset token. The code stays pending until ResetPassword.
func (s *Service) VerifyResetCode(ctx context.Context, token, code string) (resetToken string, err error) {
	defer func() { err = s.finish(ctx, OpVerifyResetCode, err) }()

	email, err := s.tokens.Verify(token, PurposePasswordResetRequest)
	if err != nil {
		return "", newKindError(KindUnauthorized, OpVerifyResetCode)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", newKindError(KindNotFound, OpVerifyResetCode)
		}
		return "", internalError("find account", err)
	}

	if !codesEqual(account.PendingCode, code) {
		return "", newKindError(KindCodeMismatch, OpVerifyResetCode)
	}

	resetToken, err = s.tokens.Issue(email, PurposePasswordReset, s.lifetimes.Reset)
	if err != nil {
		return "", internalError("issue token", err)
	}
	return resetToken, nil
}

// ResetPassword replaces the credential using a password-reset token and
// clears the pending code, which makes the token single-use.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { err = s.finish(ctx, OpResetPassword, err) }()

	email, err := s.tokens.Verify(token, PurposePasswordReset)
	if err != nil {
		return newKindError(KindUnauthorized, OpResetPassword)
	}
	if !ValidatePassword(newPassword) {
		return newKindError(KindWeakCredential, OpResetPassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError("hash credential", err)
	}

	_, err = s.mutate(ctx, OpResetPassword, email, func(a *Account) error {
		if !a.HasPendingCode() {
			return newKindError(KindUnauthorized, OpResetPassword)
		}
		a.CredentialHash = hash
		a.clearPendingCode()
		return nil
	})
	return err
}

// ResendVerificationCode issues a new verification code for the account named
// by a verification token, which may be expired but must be authentic.
func (s *Service) ResendVerificationCode(ctx context.Context, token string) (newToken string, err error) {
	defer func() { err = s.finish(ctx, OpResendCode, err) }()

	email, err := s.tokens.VerifyIgnoringExpiry(token, PurposeEmailVerification)
	if err != nil {
		return "", newKindError(KindUnauthorized, OpResendCode)
	}

	code, err := s.generateCode(s.codeLength)
	if err != nil {
		return "", internalError("generate code", err)
	}

	if _, err := s.mutate(ctx, OpResendCode, email, func(a *Account) error {
		if a.IsVerified() {
			return newKindError(KindAlreadyVerified, OpResendCode)
		}
		now := s.now()
		if throttle := CheckThrottle(a.PendingCodeExpiry, now); throttle.Throttled {
			return throttledError(OpResendCode, throttle.Remaining)
		}
		a.setPendingCode(code, ComputeThrottleExpiry(now, s.throttleWindow))
		return nil
	}); err != nil {
		return "", err
	}

	newToken, err = s.tokens.Issue(email, PurposeEmailVerification, s.lifetimes.Resend)
	if err != nil {
		return "", internalError("issue token", err)
	}

	s.deliver(ctx, OpResendCode, "verification", func() error {
		return s.notifier.SendVerificationCode(ctx, email, code)
	})

	return newToken, nil
}

// ValidateSession returns the verified account a session token was issued to.
func (s *Service) ValidateSession(ctx context.Context, token string) (account *Account, err error) {
	defer func() { err = s.finish(ctx, OpValidateSession, err) }()

	claim, err := s.tokens.Verify(token, PurposeSession)
	if err != nil {
		return nil, newKindError(KindUnauthorized, OpValidateSession)
	}
	id, err := ulid.Parse(claim)
	if err != nil {
		return nil, newKindError(KindUnauthorized, OpValidateSession)
	}

	account, err = s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newKindError(KindUnauthorized, OpValidateSession)
		}
		return nil, internalError("find account", err)
	}
	if !account.IsVerified() {
		return nil, newKindError(KindNotVerified, OpValidateSession)
	}
	return account, nil
}

// ListAccounts returns every account, oldest first. Administrative only.
func (s *Service) ListAccounts(ctx context.Context) (accounts []*Account, err error) {
	defer func() { err = s.finish(ctx, OpList, err) }()

	accounts, err = s.accounts.List(ctx)
	if err != nil {
		return nil, internalError("list accounts", err)
	}
	return accounts, nil
}

// PurgeAccounts deletes every account. Administrative only.
func (s *Service) PurgeAccounts(ctx context.Context) (count int64, err error) {
	defer func() { err = s.finish(ctx, OpPurge, err) }()

	count, err = s.accounts.DeleteAll(ctx)
	if err != nil {
		return 0, internalError("delete accounts", err)
	}
	s.logger.InfoContext(ctx, "accounts purged", "count", count)
	return count, nil
}

// mutate loads the account by email, applies fn and saves it with a version
// check, reloading and reapplying on a lost update.
func (s *Service) mutate(ctx context.Context, operation, email string, fn func(*Account) error) (*Account, error) {
	var saved *Account

	backoff := retry.WithMaxRetries(s.conflictRetries, retry.NewConstant(s.conflictBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		account, err := s.accounts.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return newKindError(KindNotFound, operation)
			}
			return internalError("find account", err)
		}

		if err := fn(account); err != nil {
			return err
		}
		account.UpdatedAt = s.now()

		if err := s.accounts.Save(ctx, account); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				s.logger.DebugContext(ctx, "version conflict, retrying",
					"operation", operation,
					"account_id", account.ID.String())
				return retry.RetryableError(err)
			}
			if errors.Is(err, ErrNotFound) {
				return newKindError(KindNotFound, operation)
			}
			return internalError("save account", err)
		}

		saved = account
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, internalError("save account", err)
		}
		return nil, err
	}
	return saved, nil
}

// deliver runs a notification. Failures are logged and counted but never
// fail the operation; the persisted state allows a resend.
func (s *Service) deliver(ctx context.Context, operation, channel string, send func() error) {
	if err := send(); err != nil {
		s.metrics.recordDeliveryFailure(channel)
		s.logger.WarnContext(ctx, "best-effort code delivery failed",
			"operation", operation,
			"channel", channel,
			"error", err.Error())
	}
}

// finish records the outcome and logs internal failures.
func (s *Service) finish(ctx context.Context, operation string, err error) error {
	s.metrics.recordOperation(operation, err)
	if err != nil && KindOf(err) == KindInternal {
		errutil.LogErrorContext(ctx, s.logger, operation+" failed", err)
	}
	return err
}
