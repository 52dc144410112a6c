// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/pkg/errutil"
)

// DefaultResetTTL is how long a password reset token stays valid.
const DefaultResetTTL = time.Hour

// ResetToken is the stored form of a password reset token.
type ResetToken struct {
	ID          ulid.ULID
	PrincipalID ulid.ULID
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// ResetTokenRepository manages password reset token persistence.
type ResetTokenRepository interface {
	// Create stores a reset token, replacing any token of the same
	// principal. At most one token per principal exists at any time.
	Create(ctx context.Context, t *ResetToken) error

	// GetByTokenHash returns ErrNotFound if no token has the hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// Delete removes a token and reports whether a row was removed.
	Delete(ctx context.Context, id ulid.ULID) (bool, error)

	// DeleteByPrincipal removes every token of a principal.
	DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) (int64, error)

	// DeleteExpired removes tokens that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

func errResetInvalid() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("reset token is invalid or expired")
}

// ResetVault issues and consumes single-use password reset tokens.
type ResetVault struct {
	tokens     ResetTokenRepository
	principals PrincipalRepository
	records    RefreshRepository
	tx         Transactor
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewResetVault creates a ResetVault. A non-positive ttl uses DefaultResetTTL.
func NewResetVault(
	tokens ResetTokenRepository,
	principals PrincipalRepository,
	records RefreshRepository,
	tx Transactor,
	ttl time.Duration,
	opts ...Option,
) (*ResetVault, error) {
	if tokens == nil || principals == nil || records == nil || tx == nil {
		return nil, oops.Code("RESET_VAULT_INVALID_DEPS").Errorf("reset vault dependencies cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	st := newSettings(opts)
	return &ResetVault{
		tokens:     tokens,
		principals: principals,
		records:    records,
		tx:         tx,
		ttl:        ttl,
		logger:     st.logger,
		now:        st.now,
	}, nil
}

// Issue replaces any outstanding reset token of p with a new one and
// returns the raw token for delivery.
func (v *ResetVault) Issue(ctx context.Context, p *Principal) (string, error) {
	token, hash, err := generateResetToken()
	if err != nil {
		return "", err
	}
	now := v.now()
	row := &ResetToken{
		ID:          ulid.Make(),
		PrincipalID: p.ID,
		TokenHash:   hash,
		ExpiresAt:   now.Add(v.ttl),
		CreatedAt:   now,
	}

	err = v.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := v.tokens.DeleteByPrincipal(ctx, p.ID); err != nil {
			return oops.Code("RESET_ISSUE_FAILED").With("operation", "delete previous").Wrap(err)
		}
		if err := v.tokens.Create(ctx, row); err != nil {
			return oops.Code("RESET_ISSUE_FAILED").With("operation", "create").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return "", oops.With("principal_id", p.ID.String()).Wrap(err)
	}
	return token, nil
}

// ConsumeAndReset redeems rawToken: in one transaction it deletes the token,
// stores newPasswordHash, clears any lockout and revokes every refresh
// record of the principal. A token can be redeemed at most once.
func (v *ResetVault) ConsumeAndReset(ctx context.Context, rawToken, newPasswordHash string) (ulid.ULID, error) {
	if rawToken == "" {
		return ulid.ULID{}, errResetInvalid()
	}

	row, err := v.tokens.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, errResetInvalid()
		}
		return ulid.ULID{}, oops.Code("RESET_LOOKUP_FAILED").Wrap(err)
	}

	if row.IsExpiredAt(v.now()) {
		if _, err := v.tokens.Delete(ctx, row.ID); err != nil {
			errutil.LogErrorContext(ctx, v.logger, "delete expired reset token", err, "reset_id", row.ID.String())
		}
		return ulid.ULID{}, errResetInvalid()
	}

	err = v.tx.InTransaction(ctx, func(ctx context.Context) error {
		deleted, err := v.tokens.Delete(ctx, row.ID)
		if err != nil {
			return oops.Code("RESET_CONSUME_FAILED").With("operation", "delete token").Wrap(err)
		}
		if !deleted {
			return errResetInvalid()
		}
		if err := v.principals.UpdatePasswordHash(ctx, row.PrincipalID, newPasswordHash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return errResetInvalid()
			}
			return oops.Code("RESET_CONSUME_FAILED").With("operation", "update password").Wrap(err)
		}
		if err := v.principals.ClearLockout(ctx, row.PrincipalID); err != nil {
			return oops.Code("RESET_CONSUME_FAILED").With("operation", "clear lockout").Wrap(err)
		}
		if _, err := v.records.RevokeAllForPrincipal(ctx, row.PrincipalID, v.now(), RevokePasswordReset); err != nil {
			return oops.Code("RESET_CONSUME_FAILED").With("operation", "revoke refresh tokens").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return ulid.ULID{}, oops.With("principal_id", row.PrincipalID.String()).Wrap(err)
	}
	return row.PrincipalID, nil
}
