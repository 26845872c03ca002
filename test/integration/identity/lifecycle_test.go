// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package identity_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/identity/internal/auth"
)

func kindOf(err error) auth.Kind {
	return auth.KindOf(err)
}

var _ = Describe("Account lifecycle", func() {
	var (
		svc *auth.Service
		box *mailbox
		clk *clock
	)

	BeforeEach(func() {
		cleanupAccounts()
		svc, box, clk = newService()
	})

	register := func(email, password string) string {
		token, err := svc.Register(env.ctx, auth.Registration{
			Name:     "Integration",
			Email:    email,
			Phone:    "555-0199",
			Password: password,
		})
		Expect(err).NotTo(HaveOccurred())
		return token
	}

	Describe("registration and verification", func() {
		It("verifies an account with the emailed code and then logs in", func() {
			token := register("ada@example.com", "analytical")

			_, err := svc.Login(env.ctx, "ada@example.com", "analytical")
			Expect(kindOf(err)).To(Equal(auth.KindNotVerified))

			Expect(svc.Verify(env.ctx, token, box.verificationCode("ada@example.com"))).To(Succeed())

			session, err := svc.Login(env.ctx, "ada@example.com", "analytical")
			Expect(err).NotTo(HaveOccurred())

			account, err := svc.ValidateSession(env.ctx, session)
			Expect(err).NotTo(HaveOccurred())
			Expect(account.State).To(Equal(auth.StateVerified))
			Expect(account.PendingCode).To(BeNil())
		})

		It("rejects a duplicate email even with different case", func() {
			register("case@example.com", "secret123")

			_, err := svc.Register(env.ctx, auth.Registration{Email: " CASE@Example.com ", Password: "secret123"})
			Expect(kindOf(err)).To(Equal(auth.KindConflict))
		})

		It("rejects a wrong code and leaves the account unverified", func() {
			token := register("wrong@example.com", "secret123")

			err := svc.Verify(env.ctx, token, "not-the-code")
			Expect(kindOf(err)).To(Equal(auth.KindCodeMismatch))

			stored, err := env.Accounts.FindByEmail(env.ctx, "wrong@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.State).To(Equal(auth.StateUnverified))
		})

		It("rejects an expired verification token", func() {
			token := register("late@example.com", "secret123")
			clk.Advance(auth.DefaultVerificationTTL)

			err := svc.Verify(env.ctx, token, box.verificationCode("late@example.com"))
			Expect(kindOf(err)).To(Equal(auth.KindUnauthorized))
		})
	})

	Describe("resending codes", func() {
		It("throttles resends and accepts an expired verification token", func() {
			token := register("resend@example.com", "secret123")
			clk.Advance(time.Hour)

			fresh, err := svc.ResendVerificationCode(env.ctx, token)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.ResendVerificationCode(env.ctx, token)
			Expect(kindOf(err)).To(Equal(auth.KindTooManyRequests))

			clk.Advance(auth.DefaultThrottleWindow)
			_, err = svc.ResendVerificationCode(env.ctx, token)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Verify(env.ctx, fresh, box.verificationCode("resend@example.com"))).To(Succeed())
		})

		It("allows exactly one of many concurrent resends", func() {
			token := register("race@example.com", "secret123")

			const workers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				throttled int
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := svc.ResendVerificationCode(env.ctx, token)
					mu.Lock()
					defer mu.Unlock()
					switch kindOf(err) {
					case "":
						successes++
					case auth.KindTooManyRequests:
						throttled++
					}
				}()
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			Expect(throttled).To(Equal(workers - 1))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() {
			token := register("reset@example.com", "old-password")
			Expect(svc.Verify(env.ctx, token, box.verificationCode("reset@example.com"))).To(Succeed())
		})

		It("replaces the password once and refuses replay", func() {
			request, err := svc.ForgotPassword(env.ctx, "reset@example.com")
			Expect(err).NotTo(HaveOccurred())

			resetToken, err := svc.VerifyResetCode(env.ctx, request, box.resetCode("reset@example.com"))
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.ResetPassword(env.ctx, resetToken, "new-password")).To(Succeed())
			Expect(kindOf(svc.ResetPassword(env.ctx, resetToken, "another-one"))).To(Equal(auth.KindUnauthorized))

			_, err = svc.Login(env.ctx, "reset@example.com", "old-password")
			Expect(kindOf(err)).To(Equal(auth.KindInvalidCredentials))

			_, err = svc.Login(env.ctx, "reset@example.com", "new-password")
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not accept a reset request token as a reset token", func() {
			request, err := svc.ForgotPassword(env.ctx, "reset@example.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(kindOf(svc.ResetPassword(env.ctx, request, "new-password"))).To(Equal(auth.KindUnauthorized))
		})

		It("reports unknown emails", func() {
			_, err := svc.ForgotPassword(env.ctx, "nobody@example.com")
			Expect(kindOf(err)).To(Equal(auth.KindNotFound))
		})
	})

	Describe("purge", func() {
		It("removes every account", func() {
			register("one@example.com", "secret123")
			register("two@example.com", "secret123")

			count, err := svc.PurgeAccounts(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(2)))

			_, err = svc.Login(env.ctx, "one@example.com", "secret123")
			Expect(kindOf(err)).To(Equal(auth.KindInvalidCredentials))
		})
	})
})
