// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/credential"
)

var _ = Describe("Sweeper", func() {
	It("purges expired refresh records and old history but keeps live rows", func() {
		staleEmail := uniqueEmail("stale")
		stale := registerAccount(staleEmail)
		_, err := env.orch.Login(env.ctx, staleEmail, strongPassword, meta("10.8.0.1"))
		Expect(err).NotTo(HaveOccurred())

		env.clock.Advance(credential.DefaultRefreshTTL + time.Minute)
		fresh := registerAccount(uniqueEmail("fresh"))

		Expect(env.sweeper.RunOnce(env.ctx)).To(Succeed())

		count := func(sql string, args ...any) int {
			var n int
			Expect(env.pool.QueryRow(env.ctx, sql, args...).Scan(&n)).To(Succeed())
			return n
		}
		Expect(count(`SELECT COUNT(*) FROM refresh_tokens WHERE principal_id = $1`, stale.Principal.ID)).To(Equal(0))
		Expect(count(`SELECT COUNT(*) FROM refresh_tokens WHERE principal_id = $1`, fresh.Principal.ID)).To(Equal(1))
		Expect(count(`SELECT COUNT(*) FROM login_attempts WHERE email = $1`, staleEmail)).To(Equal(0))
		Expect(eventsFor(idOf(stale), audit.EventRegister)).To(Equal(0))
	})
})
