// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
)

const wrongPassword = "Wr0ng#Password"

// lockState reads the stored lockout columns of a principal.
func lockState(id ulid.ULID) (int, *time.Time) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	Expect(env.pool.QueryRow(env.ctx,
		`SELECT failed_login_attempts, locked_until FROM principals WHERE id = $1`,
		id.String()).Scan(&attempts, &lockedUntil)).To(Succeed())
	return attempts, lockedUntil
}

var _ = Describe("Account lockout", func() {
	It("locks after the threshold and refuses even the right password", func() {
		email := uniqueEmail("lock")
		id := idOf(registerAccount(email))

		for range env.policy.Threshold {
			_, err := env.orch.Login(env.ctx, email, wrongPassword, meta("10.5.0.1"))
			Expect(auth.Code(err)).To(Equal(auth.CodeInvalidCredentials))
		}

		_, err := env.orch.Login(env.ctx, email, strongPassword, meta("10.5.0.1"))
		Expect(auth.Code(err)).To(Equal(auth.CodeAccountLocked))

		attempts, lockedUntil := lockState(id)
		Expect(attempts).To(Equal(env.policy.Threshold))
		Expect(lockedUntil).NotTo(BeNil())
		Expect(eventsFor(id, audit.EventAccountLocked)).To(Equal(1))
	})

	It("clears an expired lock on the next login", func() {
		email := uniqueEmail("unlock")
		id := idOf(registerAccount(email))
		for range env.policy.Threshold {
			_, _ = env.orch.Login(env.ctx, email, wrongPassword, meta("10.5.0.2"))
		}

		env.clock.Advance(env.policy.Duration + time.Second)

		_, err := env.orch.Login(env.ctx, email, strongPassword, meta("10.5.0.2"))
		Expect(err).NotTo(HaveOccurred())

		attempts, lockedUntil := lockState(id)
		Expect(attempts).To(Equal(0))
		Expect(lockedUntil).To(BeNil())
	})

	It("resets the counter after a successful login", func() {
		email := uniqueEmail("reset-counter")
		id := idOf(registerAccount(email))

		for range env.policy.Threshold - 1 {
			_, _ = env.orch.Login(env.ctx, email, wrongPassword, meta("10.5.0.3"))
		}
		_, err := env.orch.Login(env.ctx, email, strongPassword, meta("10.5.0.3"))
		Expect(err).NotTo(HaveOccurred())

		attempts, _ := lockState(id)
		Expect(attempts).To(Equal(0))
	})

	It("counts concurrent failures without losing any and locks once", func() {
		email := uniqueEmail("burst")
		id := idOf(registerAccount(email))

		errs := race(8, func(int) error {
			_, err := env.orch.Login(env.ctx, email, wrongPassword, meta("10.5.0.4"))
			return err
		})

		ok, codes := split(errs)
		Expect(ok).To(Equal(0))
		for _, code := range codes {
			Expect(code).To(BeElementOf(auth.CodeInvalidCredentials, auth.CodeAccountLocked))
		}

		attempts, lockedUntil := lockState(id)
		Expect(attempts).To(BeNumerically(">=", env.policy.Threshold))
		Expect(lockedUntil).NotTo(BeNil())
		Expect(eventsFor(id, audit.EventAccountLocked)).To(Equal(1))
	})
})
