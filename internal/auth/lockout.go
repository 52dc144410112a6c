// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/audit"
)

// LockoutPolicy configures the failed-login lockout.
type LockoutPolicy struct {
	// Threshold is the number of consecutive failures that locks an account.
	Threshold int
	// Duration is how long the lock lasts.
	Duration time.Duration
}

// DefaultLockoutPolicy locks for 15 minutes after 5 failures.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}

// LockStatus is the lockout state of a principal.
type LockStatus int

// Lock states.
const (
	Unlocked LockStatus = iota
	Locked
)

func (s LockStatus) String() string {
	if s == Locked {
		return "locked"
	}
	return "unlocked"
}

// LockoutTracker drives the per-principal lockout state machine. All state
// lives on the principal row; every transition is a single statement.
type LockoutTracker struct {
	principals PrincipalRepository
	recorder   audit.Recorder
	policy     LockoutPolicy
	logger     *slog.Logger
	now        func() time.Time
}

// NewLockoutTracker creates a LockoutTracker. Zero policy fields take the
// DefaultLockoutPolicy values.
func NewLockoutTracker(principals PrincipalRepository, recorder audit.Recorder, policy LockoutPolicy, opts ...Option) *LockoutTracker {
	if policy.Threshold <= 0 {
		policy.Threshold = DefaultLockoutPolicy.Threshold
	}
	if policy.Duration <= 0 {
		policy.Duration = DefaultLockoutPolicy.Duration
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	st := newSettings(opts)
	return &LockoutTracker{
		principals: principals,
		recorder:   recorder,
		policy:     policy,
		logger:     st.logger,
		now:        st.now,
	}
}

// Policy returns the effective policy.
func (t *LockoutTracker) Policy() LockoutPolicy {
	return t.policy
}

// Check reports whether p is locked. A lock that has already ended is
// cleared in storage and p is updated to match.
func (t *LockoutTracker) Check(ctx context.Context, p *Principal) (LockStatus, error) {
	now := t.now()
	if p.IsLockedAt(now) {
		return Locked, nil
	}
	if p.LockedUntil == nil {
		return Unlocked, nil
	}

	if _, err := t.principals.ClearExpiredLockout(ctx, p.ID, now); err != nil {
		return Unlocked, oops.Code("LOCKOUT_CLEAR_FAILED").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	return Unlocked, nil
}

// RecordFailure counts a failed login for p. When the count reaches the
// threshold the account is locked and AUTH_ACCOUNT_LOCKED is recorded.
func (t *LockoutTracker) RecordFailure(ctx context.Context, p *Principal, meta RequestMeta) (LockoutState, error) {
	lockUntil := t.now().Add(t.policy.Duration)
	state, err := t.principals.RecordLoginFailure(ctx, p.ID, t.policy.Threshold, lockUntil)
	if err != nil {
		return LockoutState{}, oops.Code("LOCKOUT_RECORD_FAILED").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	p.FailedLoginAttempts = state.FailedLoginAttempts
	p.LockedUntil = state.LockedUntil

	if state.FailedLoginAttempts == t.policy.Threshold && state.LockedUntil != nil {
		AccountLockouts.Inc()
		emit(ctx, t.recorder, t.logger, meta.event(audit.EventAccountLocked, p, map[string]any{
			"attempts":   state.FailedLoginAttempts,
			"lock_until": state.LockedUntil.UTC().Format(time.RFC3339),
		}))
	}
	return state, nil
}

// RecordSuccess resets the failure counter and clears any lock.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, p *Principal) error {
	if err := t.principals.ClearLockout(ctx, p.ID); err != nil {
		return oops.Code("LOCKOUT_CLEAR_FAILED").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	return nil
}
