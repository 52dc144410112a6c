// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/auth"
)

const newPassword = "N3w#Passphrase"

func resetRows(id ulid.ULID) int {
	var n int
	Expect(env.pool.QueryRow(env.ctx,
		`SELECT COUNT(*) FROM password_reset_tokens WHERE principal_id = $1`, id.String()).Scan(&n)).To(Succeed())
	return n
}

var _ = Describe("Password management", func() {
	Describe("ChangePassword", func() {
		It("replaces the password and signs out every device", func() {
			email := uniqueEmail("change")
			session := registerAccount(email)

			Expect(env.orch.ChangePassword(env.ctx, idOf(session), strongPassword, newPassword, meta("10.6.0.1"))).To(Succeed())

			_, err := env.orch.Login(env.ctx, email, strongPassword, meta("10.6.0.1"))
			Expect(auth.Code(err)).To(Equal(auth.CodeInvalidCredentials))
			_, err = env.orch.Login(env.ctx, email, newPassword, meta("10.6.0.1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(liveInFamily(familyOf(session.Tokens.RefreshToken))).To(Equal(0))
		})

		It("requires the current password", func() {
			session := registerAccount(uniqueEmail("change-wrong"))

			err := env.orch.ChangePassword(env.ctx, idOf(session), wrongPassword, newPassword, meta("10.6.0.2"))
			Expect(auth.Code(err)).To(Equal(auth.CodeInvalidCredentials))
			Expect(liveInFamily(familyOf(session.Tokens.RefreshToken))).To(Equal(1))
		})
	})

	Describe("ForgotPassword and ResetPassword", func() {
		It("resets the password with the mailed token and revokes sessions", func() {
			email := uniqueEmail("forgot")
			session := registerAccount(email)

			Expect(env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.1"))).To(Succeed())
			token := resetTokenFor(email)

			Expect(env.orch.ResetPassword(env.ctx, token, newPassword, meta("10.7.0.1"))).To(Succeed())
			Expect(resetRows(idOf(session))).To(Equal(0))

			_, err := env.orch.Login(env.ctx, email, newPassword, meta("10.7.0.1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = env.orch.Refresh(env.ctx, session.Tokens.RefreshToken, meta("10.7.0.1"))
			Expect(auth.Code(err)).To(Equal(auth.CodeTokenReuseDetected))
		})

		It("accepts a token only once", func() {
			email := uniqueEmail("once")
			registerAccount(email)
			Expect(env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.2"))).To(Succeed())
			token := resetTokenFor(email)

			errs := race(5, func(int) error {
				return env.orch.ResetPassword(env.ctx, token, newPassword, meta("10.7.0.2"))
			})

			ok, codes := split(errs)
			Expect(ok).To(Equal(1))
			Expect(codes).To(HaveLen(4))
			for _, code := range codes {
				Expect(code).To(Equal(auth.CodeResetTokenInvalid))
			}
		})

		It("refuses an expired token and deletes it", func() {
			email := uniqueEmail("expired")
			id := idOf(registerAccount(email))
			Expect(env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.3"))).To(Succeed())
			token := resetTokenFor(email)

			env.clock.Advance(31 * time.Minute)

			err := env.orch.ResetPassword(env.ctx, token, newPassword, meta("10.7.0.3"))
			Expect(auth.Code(err)).To(Equal(auth.CodeResetTokenInvalid))
			Expect(resetRows(id)).To(Equal(0))

			_, err = env.orch.Login(env.ctx, email, strongPassword, meta("10.7.0.3"))
			Expect(err).NotTo(HaveOccurred(), "password unchanged")
		})

		It("keeps only the latest outstanding token", func() {
			email := uniqueEmail("latest")
			id := idOf(registerAccount(email))

			Expect(env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.4"))).To(Succeed())
			first := resetTokenFor(email)
			Expect(env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.4"))).To(Succeed())
			second := resetTokenFor(email)

			Expect(resetRows(id)).To(Equal(1))
			err := env.orch.ResetPassword(env.ctx, first, newPassword, meta("10.7.0.4"))
			Expect(auth.Code(err)).To(Equal(auth.CodeResetTokenInvalid))
			Expect(env.orch.ResetPassword(env.ctx, second, newPassword, meta("10.7.0.4"))).To(Succeed())
		})

		It("leaves one redeemable token when requests race", func() {
			email := uniqueEmail("race-issue")
			id := idOf(registerAccount(email))

			errs := race(8, func(int) error {
				return env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.6"))
			})
			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(resetRows(id)).To(Equal(1))

			redeemed := 0
			for _, m := range env.mailer.Sent() {
				if m.To != email {
					continue
				}
				if env.orch.ResetPassword(env.ctx, m.Token, newPassword, meta("10.7.0.6")) == nil {
					redeemed++
				}
			}
			Expect(redeemed).To(Equal(1))
		})

		It("reports success for unknown addresses without sending mail", func() {
			email := uniqueEmail("nobody")
			before := len(env.mailer.Sent())

			Expect(env.orch.ForgotPassword(env.ctx, email, meta("10.7.0.5"))).To(Succeed())
			for _, m := range env.mailer.Sent()[before:] {
				Expect(m.To).NotTo(Equal(email))
			}
		})
	})
})
