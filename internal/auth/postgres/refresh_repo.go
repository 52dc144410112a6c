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

const refreshColumns = `id, principal_id, token_hash, family_id, issued_at, expires_at,
	revoked_at, revoked_reason, ip_address, user_agent`

// RefreshRepository implements auth.RefreshRepository using PostgreSQL.
type RefreshRepository struct {
	pool DBTX
}

// NewRefreshRepository creates a new RefreshRepository.
func NewRefreshRepository(pool DBTX) *RefreshRepository {
	return &RefreshRepository{pool: pool}
}

// Create stores a new refresh record.
func (r *RefreshRepository) Create(ctx context.Context, rec *auth.RefreshRecord) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.ID.String(),
		rec.PrincipalID.String(),
		rec.TokenHash,
		rec.FamilyID,
		rec.IssuedAt,
		rec.ExpiresAt,
		rec.RevokedAt,
		nullable(rec.RevokedReason),
		rec.IPAddress,
		rec.UserAgent,
	)
	if isUniqueViolation(err) {
		return oops.Code("REFRESH_DUPLICATE").
			With("family_id", rec.FamilyID).
			Wrap(auth.ErrDuplicateToken)
	}
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("principal_id", rec.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a record by its token hash, revoked or not.
func (r *RefreshRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshRecord, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)

	rec, err := scanRefresh(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get refresh_token by hash").Wrap(err)
	}
	return rec, nil
}

// RevokeIfActive revokes the record only if no one else has.
func (r *RefreshRepository) RevokeIfActive(ctx context.Context, id ulid.ULID, at time.Time, reason string) (bool, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, id.String(), at, reason)
	if err != nil {
		return false, oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke refresh_token").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// RevokeFamily revokes every unrevoked record in a family.
func (r *RefreshRepository) RevokeFamily(ctx context.Context, familyID string, at time.Time, reason string) (int64, error) {
	return r.revoke(ctx, "revoke family", `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE family_id = $1 AND revoked_at IS NULL
	`, familyID, at, reason)
}

// RevokeByTokenHash revokes the principal's record with the hash.
func (r *RefreshRepository) RevokeByTokenHash(ctx context.Context, principalID ulid.ULID, tokenHash string, at time.Time, reason string) (int64, error) {
	return r.revoke(ctx, "revoke by token hash", `
		UPDATE refresh_tokens
		SET revoked_at = $3, revoked_reason = $4
		WHERE principal_id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`, principalID.String(), tokenHash, at, reason)
}

// RevokeAllForPrincipal revokes every unrevoked record of a principal.
func (r *RefreshRepository) RevokeAllForPrincipal(ctx context.Context, principalID ulid.ULID, at time.Time, reason string) (int64, error) {
	return r.revoke(ctx, "revoke all for principal", `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE principal_id = $1 AND revoked_at IS NULL
	`, principalID.String(), at, reason)
}

func (r *RefreshRepository) revoke(ctx context.Context, operation, sql string, args ...any) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", operation).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// ListActive returns the principal's unrevoked, unexpired records, newest
// first.
func (r *RefreshRepository) ListActive(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*auth.RefreshRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC
	`, principalID.String(), now)
	if err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").
			With("operation", "list active refresh_tokens").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var recs []*auth.RefreshRecord
	for rows.Next() {
		rec, err := scanRefresh(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").
			With("operation", "iterate refresh_tokens").
			Wrap(err)
	}
	return recs, nil
}

// DeleteExpired removes records that expired before cutoff.
func (r *RefreshRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanRefresh scans a single row into a RefreshRecord.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRefresh(row scanner) (*auth.RefreshRecord, error) {
	var (
		rec            auth.RefreshRecord
		idStr          string
		principalIDStr string
		reason         *string
	)
	err := row.Scan(
		&idStr,
		&principalIDStr,
		&rec.TokenHash,
		&rec.FamilyID,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
		&reason,
		&rec.IPAddress,
		&rec.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("REFRESH_SCAN_FAILED").
			With("operation", "scan refresh_token").
			Wrap(err)
	}

	if rec.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("REFRESH_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if rec.PrincipalID, err = ulid.Parse(principalIDStr); err != nil {
		return nil, oops.Code("REFRESH_INVALID_PRINCIPAL_ID").With("principal_id", principalIDStr).Wrap(err)
	}
	rec.RevokedReason = deref(reason)
	return &rec, nil
}

// Compile-time interface check.
var _ auth.RefreshRepository = (*RefreshRepository)(nil)
