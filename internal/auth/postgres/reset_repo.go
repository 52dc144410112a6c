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

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	pool DBTX
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(pool DBTX) *ResetTokenRepository {
	return &ResetTokenRepository{pool: pool}
}

// Create stores a password reset token, replacing any token the principal
// already has. Concurrent issuers serialise on the principal_id unique index
// and the last one wins.
func (r *ResetTokenRepository) Create(ctx context.Context, t *auth.ResetToken) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO password_reset_tokens (id, principal_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal_id) DO UPDATE
		SET id = EXCLUDED.id,
		    token_hash = EXCLUDED.token_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
	`, t.ID.String(), t.PrincipalID.String(), t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset_token").
			With("principal_id", t.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset token by its hash.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, principal_id, token_hash, expires_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`, tokenHash)

	t, err := scanReset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a reset token. Reports false if it was already gone, which
// is how a concurrent redemption loses.
func (r *ResetTokenRepository) Delete(ctx context.Context, id ulid.ULID) (bool, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE id = $1
	`, id.String())
	if err != nil {
		return false, oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset_token").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteByPrincipal removes all reset tokens for a principal.
func (r *ResetTokenRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE principal_id = $1
	`, principalID.String())
	if err != nil {
		return 0, oops.Code("RESET_DELETE_BY_PRINCIPAL_FAILED").
			With("operation", "delete password_reset_tokens by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password_reset_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanReset scans a single row into a ResetToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanReset(row scanner) (*auth.ResetToken, error) {
	var (
		idStr          string
		principalIDStr string
		t              auth.ResetToken
	)

	err := row.Scan(&idStr, &principalIDStr, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan password_reset_token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("operation", "parse reset id").
			With("id", idStr).
			Wrap(err)
	}

	principalID, err := ulid.Parse(principalIDStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_PRINCIPAL_ID").
			With("operation", "parse principal id").
			With("principal_id", principalIDStr).
			Wrap(err)
	}

	t.ID = id
	t.PrincipalID = principalID
	return &t, nil
}

// Compile-time interface check.
var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
