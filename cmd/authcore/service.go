// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/postgres"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/internal/mail"
	"github.com/holomush/authcore/internal/throttle"
)

// service is the wired authcore object graph.
type service struct {
	orchestrator *auth.Orchestrator
	sweeper      *auth.Sweeper
	principals   *postgres.PrincipalRepository
	gate         *throttle.Gate
	mailer       *mail.ThrottledMailer
}

// newService builds the orchestrator and sweeper over pool. Metrics are
// registered with reg, which must not have seen them before.
func newService(cfg *config.Config, pool postgres.Pool, reg prometheus.Registerer, mailOut io.Writer, logger *slog.Logger) (*service, error) {
	codec, err := credential.New(cfg.CodecConfig())
	if err != nil {
		return nil, err
	}

	auth.RegisterMetrics(reg)
	audit.RegisterMetrics(reg)
	mail.RegisterMetrics(reg)

	principals := postgres.NewPrincipalRepository(pool)
	refresh := postgres.NewRefreshRepository(pool)
	resets := postgres.NewResetTokenRepository(pool)
	attempts := postgres.NewLoginAttemptRepository(pool)
	events := audit.NewPostgresWriter(pool)

	recorder := audit.NewMultiRecorder(logger,
		audit.Sink{Name: "log", Recorder: audit.NewSlogRecorder(logger)},
		audit.Sink{Name: "postgres", Recorder: events},
	)
	mailer := mail.NewThrottledMailer(
		mail.NewLogMailer(mailOut, cfg.Reset.BaseURL, logger),
		cfg.MailThrottle(),
	)
	gate := throttle.NewGateWithRegistry(cfg.GateConfig(), reg)

	orchestrator, err := auth.NewOrchestrator(auth.Deps{
		Principals: principals,
		Refresh:    refresh,
		Resets:     resets,
		Attempts:   attempts,
		Tx:         postgres.NewTransactor(pool),
		Codec:      codec,
		Throttle:   gate,
		Hasher:     auth.NewArgon2idHasher(),
		Mailer:     mailer,
		Recorder:   recorder,
	}, cfg.AuthConfig(), auth.WithLogger(logger))
	if err != nil {
		gate.Close()
		return nil, err
	}

	sweeper := auth.NewSweeper(cfg.SweeperConfig(), auth.SweeperDeps{
		Refresh:  refresh,
		Resets:   resets,
		Attempts: attempts,
		Events:   events,
	}, auth.WithLogger(logger))

	return &service{
		orchestrator: orchestrator,
		sweeper:      sweeper,
		principals:   principals,
		gate:         gate,
		mailer:       mailer,
	}, nil
}

func (s *service) close() {
	s.gate.Close()
}
