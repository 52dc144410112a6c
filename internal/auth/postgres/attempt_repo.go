// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

// LoginAttemptRepository implements auth.LoginAttemptRepository using
// PostgreSQL.
type LoginAttemptRepository struct {
	pool DBTX
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository.
func NewLoginAttemptRepository(pool DBTX) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: pool}
}

// Record appends a login attempt.
func (r *LoginAttemptRepository) Record(ctx context.Context, a auth.LoginAttempt) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO login_attempts (id, email, ip_address, success, reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ulid.Make().String(), a.Email, nullable(a.IPAddress), a.Success, a.Reason, a.AttemptedAt)
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_RECORD_FAILED").
			With("operation", "insert login_attempt").
			With("reason", a.Reason).
			Wrap(err)
	}
	return nil
}

// DeleteBefore removes attempts older than cutoff.
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM login_attempts WHERE attempted_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").
			With("operation", "delete old login_attempts").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.LoginAttemptRepository = (*LoginAttemptRepository)(nil)
