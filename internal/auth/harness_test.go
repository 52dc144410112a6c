// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/authtest"
	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/internal/throttle"
)

const strongPassword = "Corr3ct#Horse"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store   *authtest.Store
	clock   *authtest.Clock
	gate    *throttle.Gate
	codec   *credential.Codec
	hasher  *auth.Argon2idHasher
	mailer  *authtest.Mailer
	events  *authtest.Recorder
	orch    *auth.Orchestrator
	logger  *slog.Logger
	options []auth.Option
}

func newHarness(t *testing.T, configure ...func(*auth.Config)) *harness {
	t.Helper()

	h := &harness{
		store:  authtest.NewStore(),
		clock:  authtest.NewClock(epoch),
		hasher: auth.NewArgon2idHasherWithParams(fastParams),
		mailer: &authtest.Mailer{},
		events: &authtest.Recorder{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.options = []auth.Option{auth.WithClock(h.clock.Now), auth.WithLogger(h.logger)}

	h.gate = throttle.NewGate(throttle.Config{Clock: h.clock.Now, GCInterval: time.Hour})
	t.Cleanup(h.gate.Close)

	codec, err := credential.New(credential.Config{
		AccessSecret:  []byte("test-access-secret-0123456789abcdef"),
		RefreshSecret: []byte("test-refresh-secret-0123456789abcde"),
		Clock:         h.clock.Now,
	})
	require.NoError(t, err)
	h.codec = codec

	cfg := auth.Config{}
	for _, fn := range configure {
		fn(&cfg)
	}

	h.orch, err = auth.NewOrchestrator(h.deps(), cfg, h.options...)
	require.NoError(t, err)
	return h
}

func (h *harness) deps() auth.Deps {
	return auth.Deps{
		Principals: h.store.Principals(),
		Refresh:    h.store.Refresh(),
		Resets:     h.store.Resets(),
		Attempts:   h.store.Attempts(),
		Tx:         h.store,
		Codec:      h.codec,
		Throttle:   h.gate,
		Hasher:     h.hasher,
		Mailer:     h.mailer,
		Recorder:   h.events,
	}
}

func meta(ip string) auth.RequestMeta {
	return auth.RequestMeta{IPAddress: ip, UserAgent: "test-agent", RequestID: "req-" + ip}
}

// register creates an account and returns its session.
func (h *harness) register(t *testing.T, email string) *auth.Session {
	t.Helper()
	s, err := h.orch.Register(context.Background(), auth.RegisterInput{
		Email:       email,
		Password:    strongPassword,
		DisplayName: "Ada Lovelace",
		Role:        auth.RoleClient,
	}, meta("10.0.0.1"))
	require.NoError(t, err)
	return s
}

func principalID(t *testing.T, s *auth.Session) ulid.ULID {
	t.Helper()
	id, err := ulid.Parse(s.Principal.ID)
	require.NoError(t, err)
	return id
}

// liveInFamily counts unrevoked, unexpired records in a family.
func (h *harness) liveInFamily(family string) int {
	n := 0
	for _, r := range h.store.Refresh().Family(family) {
		if r.IsLiveAt(h.clock.Now()) {
			n++
		}
	}
	return n
}

func (h *harness) familyOf(t *testing.T, refreshToken string) string {
	t.Helper()
	claims, err := h.codec.VerifyRefresh(refreshToken)
	require.NoError(t, err)
	return claims.FamilyID
}

func oopsContext(err error) map[string]any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Context()
	}
	return nil
}

func violationsOf(t *testing.T, err error) []string {
	t.Helper()
	v, ok := oopsContext(err)["violations"].([]string)
	require.True(t, ok, "violations context missing")
	return v
}
