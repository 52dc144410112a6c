// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// Login attempt outcomes.
const (
	AttemptSuccess            = "success"
	AttemptUnknownEmail       = "user_not_found"
	AttemptInvalidPassword    = "invalid_password"
	AttemptAccountLocked      = "account_locked"
	AttemptAccountDeactivated = "account_deactivated"
)

// LoginAttempt is one row of login history.
type LoginAttempt struct {
	Email       string
	IPAddress   string
	Success     bool
	Reason      string
	AttemptedAt time.Time
}

// LoginAttemptRepository appends login history.
type LoginAttemptRepository interface {
	Record(ctx context.Context, a LoginAttempt) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
