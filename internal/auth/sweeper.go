// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig defines how long expired rows are kept.
type SweeperConfig struct {
	Interval         time.Duration // How often to run the purge cycle
	RefreshGrace     time.Duration // Keep expired refresh records this long for reuse forensics
	AttemptRetention time.Duration // Login history retention; zero keeps forever
	EventRetention   time.Duration // Security event retention; zero keeps forever
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:         time.Hour,
		RefreshGrace:     7 * 24 * time.Hour,
		AttemptRetention: 30 * 24 * time.Hour,
		EventRetention:   90 * 24 * time.Hour,
	}
}

// EventPurger deletes security events older than a cutoff.
type EventPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweeperDeps are the stores a Sweeper purges. Attempts and Events are optional.
type SweeperDeps struct {
	Refresh  RefreshRepository
	Resets   ResetTokenRepository
	Attempts LoginAttemptRepository
	Events   EventPurger
}

// Sweeper periodically deletes expired refresh records, reset tokens and
// old history rows. It never touches live rows.
type Sweeper struct {
	cfg    SweeperConfig
	deps   SweeperDeps
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewSweeper creates a new sweeper.
func NewSweeper(cfg SweeperConfig, deps SweeperDeps, opts ...Option) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RefreshGrace < 0 {
		cfg.RefreshGrace = 0
	}
	st := newSettings(opts)
	return &Sweeper{cfg: cfg, deps: deps, logger: st.logger, clock: st.now}
}

// RunOnce executes a single purge cycle. Every step is attempted even if an
// earlier one fails; errors are combined.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.clock()
	var errs []error

	step := func(table string, fn func() (int64, error)) {
		n, err := fn()
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", "table", table, "error", err)
			errs = append(errs, err)
			return
		}
		if n > 0 {
			SweptRows.WithLabelValues(table).Add(float64(n))
			s.logger.InfoContext(ctx, "swept expired rows", "table", table, "count", n)
		}
	}

	if s.deps.Refresh != nil {
		step("refresh_tokens", func() (int64, error) {
			return s.deps.Refresh.DeleteExpired(ctx, now.Add(-s.cfg.RefreshGrace))
		})
	}
	if s.deps.Resets != nil {
		step("password_reset_tokens", func() (int64, error) {
			return s.deps.Resets.DeleteExpired(ctx, now)
		})
	}
	if s.deps.Attempts != nil && s.cfg.AttemptRetention > 0 {
		step("login_attempts", func() (int64, error) {
			return s.deps.Attempts.DeleteBefore(ctx, now.Add(-s.cfg.AttemptRetention))
		})
	}
	if s.deps.Events != nil && s.cfg.EventRetention > 0 {
		step("security_events", func() (int64, error) {
			return s.deps.Events.PurgeBefore(ctx, now.Add(-s.cfg.EventRetention))
		})
	}

	return errors.Join(errs...)
}

// Start begins periodic sweeping. The first cycle runs immediately. Start
// on a running or stopped sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for the current cycle to finish. It is
// safe to call from any goroutine, more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
			}
		}
	}
}
