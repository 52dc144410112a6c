// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
)

const principalColumns = `id, email, display_name, password_hash, role,
	failed_login_attempts, locked_until, is_active, created_at, updated_at`

// PrincipalRepository implements auth.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	pool DBTX
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(pool DBTX) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

// Create stores a new principal.
func (r *PrincipalRepository) Create(ctx context.Context, p *auth.Principal) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO principals (`+principalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		p.ID.String(),
		p.Email,
		p.DisplayName,
		p.PasswordHash,
		string(p.Role),
		p.FailedLoginAttempts,
		p.LockedUntil,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("PRINCIPAL_EMAIL_TAKEN").
			With("principal_id", p.ID.String()).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE id = $1
	`, id.String())

	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("principal_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get principal by id").Wrap(err)
	}
	return p, nil
}

// GetByEmail retrieves a principal by email, ignoring case.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE LOWER(email) = LOWER($1)
	`, email)

	p, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get principal by email").Wrap(err)
	}
	return p, nil
}

// RecordLoginFailure increments the failure counter and locks the account
// once the new count reaches threshold, in one statement.
func (r *PrincipalRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (auth.LockoutState, error) {
	var state auth.LockoutState
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE principals
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`, id.String(), threshold, lockUntil).Scan(&state.FailedLoginAttempts, &state.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.LockoutState{}, oops.Code("PRINCIPAL_NOT_FOUND").
			With("principal_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.LockoutState{}, oops.Code("PRINCIPAL_UPDATE_FAILED").
			With("operation", "record login failure").
			With("principal_id", id.String()).
			Wrap(err)
	}
	return state, nil
}

// ClearLockout resets the failure counter and lock.
func (r *PrincipalRepository) ClearLockout(ctx context.Context, id ulid.ULID) error {
	return r.update(ctx, id, "clear lockout", `
		UPDATE principals
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`)
}

// ClearExpiredLockout resets the counter only if the lock ended at or
// before now.
func (r *PrincipalRepository) ClearExpiredLockout(ctx context.Context, id ulid.ULID, now time.Time) (bool, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE principals
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= $2
	`, id.String(), now)
	if err != nil {
		return false, oops.Code("PRINCIPAL_UPDATE_FAILED").
			With("operation", "clear expired lockout").
			With("principal_id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(ctx, id, "update password hash", `
		UPDATE principals
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, passwordHash)
}

func (r *PrincipalRepository) update(ctx context.Context, id ulid.ULID, operation, sql string, args ...any) error {
	result, err := conn(ctx, r.pool).Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_FAILED").
			With("operation", operation).
			With("principal_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("principal_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanPrincipal scans a single row into a Principal.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPrincipal(row scanner) (*auth.Principal, error) {
	var (
		p     auth.Principal
		idStr string
		role  string
	)
	err := row.Scan(
		&idStr,
		&p.Email,
		&p.DisplayName,
		&p.PasswordHash,
		&role,
		&p.FailedLoginAttempts,
		&p.LockedUntil,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("PRINCIPAL_SCAN_FAILED").
			With("operation", "scan principal").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_INVALID_ID").
			With("operation", "parse principal id").
			With("id", idStr).
			Wrap(err)
	}
	p.ID = id
	p.Role = auth.Role(role)
	return &p, nil
}

// Compile-time interface check.
var _ auth.PrincipalRepository = (*PrincipalRepository)(nil)
