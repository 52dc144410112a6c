// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
)

var _ = Describe("Session lifecycle", func() {
	Describe("Register", func() {
		It("creates the account and an authenticated session", func() {
			email := uniqueEmail("register")
			session := registerAccount(email)

			Expect(session.Principal.Email).To(Equal(email))
			Expect(session.Tokens.RefreshToken).NotTo(BeEmpty())

			identity, err := env.orch.Authenticate(session.Tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.PrincipalID).To(Equal(idOf(session)))
			Expect(identity.Role).To(Equal(auth.RoleClient))

			Expect(eventsFor(idOf(session), audit.EventRegister)).To(Equal(1))
		})

		It("rejects an email that differs only in case", func() {
			email := uniqueEmail("dupe")
			registerAccount(email)

			_, err := env.orch.Register(env.ctx, auth.RegisterInput{
				Email:       strings.ToUpper(email),
				Password:    strongPassword,
				DisplayName: "Other",
			}, meta("10.1.0.2"))
			Expect(auth.Code(err)).To(Equal(auth.CodeConflict))
		})

		It("stores nothing when validation fails", func() {
			email := uniqueEmail("weak")
			_, err := env.orch.Register(env.ctx, auth.RegisterInput{
				Email:       email,
				Password:    "weak",
				DisplayName: "Weak",
			}, meta("10.1.0.3"))
			Expect(auth.Code(err)).To(Equal(auth.CodeValidationFailed))

			var n int
			Expect(env.pool.QueryRow(env.ctx,
				`SELECT COUNT(*) FROM principals WHERE LOWER(email) = $1`, email).Scan(&n)).To(Succeed())
			Expect(n).To(Equal(0))
		})
	})

	Describe("Login", func() {
		It("matches the email case-insensitively and records the attempt", func() {
			email := uniqueEmail("login")
			registerAccount(email)

			session, err := env.orch.Login(env.ctx, strings.ToUpper(email), strongPassword, meta("10.2.0.1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Principal.Email).To(Equal(email))

			var success bool
			Expect(env.pool.QueryRow(env.ctx,
				`SELECT success FROM login_attempts WHERE email = $1 ORDER BY attempted_at DESC LIMIT 1`,
				email).Scan(&success)).To(Succeed())
			Expect(success).To(BeTrue())
		})

		It("gives the same answer for unknown emails and wrong passwords", func() {
			email := uniqueEmail("enum")
			registerAccount(email)

			_, wrongPassword := env.orch.Login(env.ctx, email, "Wr0ng#Password", meta("10.2.0.2"))
			_, unknownEmail := env.orch.Login(env.ctx, uniqueEmail("ghost"), strongPassword, meta("10.2.0.2"))

			Expect(auth.Code(wrongPassword)).To(Equal(auth.CodeInvalidCredentials))
			Expect(auth.Code(unknownEmail)).To(Equal(auth.CodeInvalidCredentials))
			Expect(wrongPassword.Error()).To(Equal(unknownEmail.Error()))
		})
	})

	Describe("Refresh", func() {
		It("rotates the token within its family", func() {
			session := registerAccount(uniqueEmail("rotate"))
			family := familyOf(session.Tokens.RefreshToken)

			next, err := env.orch.Refresh(env.ctx, session.Tokens.RefreshToken, meta("10.3.0.1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Tokens.RefreshToken).NotTo(Equal(session.Tokens.RefreshToken))
			Expect(familyOf(next.Tokens.RefreshToken)).To(Equal(family))
			Expect(liveInFamily(family)).To(Equal(1))
		})

		It("revokes the whole family when a rotated token is presented again", func() {
			session := registerAccount(uniqueEmail("reuse"))
			family := familyOf(session.Tokens.RefreshToken)

			next, err := env.orch.Refresh(env.ctx, session.Tokens.RefreshToken, meta("10.3.0.2"))
			Expect(err).NotTo(HaveOccurred())

			_, err = env.orch.Refresh(env.ctx, session.Tokens.RefreshToken, meta("10.3.0.2"))
			Expect(auth.Code(err)).To(Equal(auth.CodeTokenReuseDetected))
			Expect(liveInFamily(family)).To(Equal(0))

			_, err = env.orch.Refresh(env.ctx, next.Tokens.RefreshToken, meta("10.3.0.2"))
			Expect(auth.Code(err)).To(Equal(auth.CodeTokenReuseDetected))
			Expect(eventsFor(idOf(session), audit.EventTokenReuseDetected)).To(BeNumerically(">=", 1))
		})

		It("lets exactly one of several concurrent rotations win", func() {
			session := registerAccount(uniqueEmail("race"))
			token := session.Tokens.RefreshToken

			errs := race(8, func(int) error {
				_, err := env.orch.Refresh(env.ctx, token, meta("10.3.0.3"))
				return err
			})

			ok, codes := split(errs)
			Expect(ok).To(Equal(1))
			Expect(codes).To(HaveLen(7))
			for _, code := range codes {
				Expect(code).To(Equal(auth.CodeTokenReuseDetected))
			}
		})

		It("refuses access tokens and garbage as refresh tokens", func() {
			session := registerAccount(uniqueEmail("garbage"))

			_, err := env.orch.Refresh(env.ctx, session.Tokens.AccessToken, meta("10.3.0.4"))
			Expect(auth.Code(err)).To(Equal(auth.CodeTokenInvalid))

			_, err = env.orch.Refresh(env.ctx, "not-a-token", meta("10.3.0.4"))
			Expect(auth.Code(err)).To(Equal(auth.CodeTokenInvalid))
		})
	})

	Describe("Logout", func() {
		It("revokes only the presented token", func() {
			email := uniqueEmail("logout")
			first := registerAccount(email)
			second, err := env.orch.Login(env.ctx, email, strongPassword, meta("10.4.0.1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(env.orch.Logout(env.ctx, idOf(first), first.Tokens.RefreshToken, meta("10.4.0.1"))).To(Succeed())

			sessions, err := env.orch.Sessions(env.ctx, idOf(first))
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].FamilyID).To(Equal(familyOf(second.Tokens.RefreshToken)))
		})

		It("ignores a token that belongs to someone else", func() {
			mine := registerAccount(uniqueEmail("mine"))
			theirs := registerAccount(uniqueEmail("theirs"))

			Expect(env.orch.Logout(env.ctx, idOf(mine), theirs.Tokens.RefreshToken, meta("10.4.0.2"))).To(Succeed())
			Expect(liveInFamily(familyOf(theirs.Tokens.RefreshToken))).To(Equal(1))
		})

		It("signs out every device", func() {
			email := uniqueEmail("everywhere")
			session := registerAccount(email)
			for range 2 {
				_, err := env.orch.Login(env.ctx, email, strongPassword, meta("10.4.0.3"))
				Expect(err).NotTo(HaveOccurred())
			}

			n, err := env.orch.LogoutAll(env.ctx, idOf(session), meta("10.4.0.3"))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))

			sessions, err := env.orch.Sessions(env.ctx, idOf(session))
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeEmpty())
			Expect(eventsFor(idOf(session), audit.EventLogoutAll)).To(Equal(1))
		})
	})
})
