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

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/credential"
)

// Reasons recorded when a refresh record is revoked.
const (
	RevokeRotated         = "rotated"
	RevokeReuseDetected   = "reuse_detected"
	RevokeLogout          = "logout"
	RevokeLogoutAll       = "logout_all"
	RevokePasswordChanged = "password_changed"
	RevokePasswordReset   = "password_reset"
)

// RefreshRecord is the stored form of an issued refresh token.
type RefreshRecord struct {
	ID            ulid.ULID
	PrincipalID   ulid.ULID
	TokenHash     string
	FamilyID      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason string
	IPAddress     string
	UserAgent     string
}

// IsLiveAt reports whether the record is unrevoked and unexpired at t.
func (r *RefreshRecord) IsLiveAt(t time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(t)
}

// RefreshRepository manages refresh record persistence. Records are revoked,
// never deleted, except by DeleteExpired.
type RefreshRepository interface {
	// Create stores a new record. Token hashes are unique.
	Create(ctx context.Context, r *RefreshRecord) error

	// GetByTokenHash returns ErrNotFound if no record has the hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshRecord, error)

	// RevokeIfActive revokes the record only if it is not already revoked,
	// in one conditional statement. Reports whether this call revoked it.
	RevokeIfActive(ctx context.Context, id ulid.ULID, at time.Time, reason string) (bool, error)

	// RevokeFamily revokes every unrevoked record in a family.
	RevokeFamily(ctx context.Context, familyID string, at time.Time, reason string) (int64, error)

	// RevokeByTokenHash revokes the principal's unrevoked record with the hash.
	RevokeByTokenHash(ctx context.Context, principalID ulid.ULID, tokenHash string, at time.Time, reason string) (int64, error)

	// RevokeAllForPrincipal revokes every unrevoked record of a principal.
	RevokeAllForPrincipal(ctx context.Context, principalID ulid.ULID, at time.Time, reason string) (int64, error)

	// ListActive returns the principal's live records, newest first.
	ListActive(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*RefreshRecord, error)

	// DeleteExpired removes records that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// IssuedRefresh is a freshly minted refresh token and its stored record.
type IssuedRefresh struct {
	Token  string
	Record *RefreshRecord
}

// TokenPair is what a successful login, registration or refresh returns.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresIn        int64     `json:"expiresIn"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// errRotationLost is returned inside the rotation transaction when another
// caller revoked the record first.
var errRotationLost = errors.New("refresh record already revoked")

// RefreshLedger issues, rotates and revokes refresh tokens and owns reuse
// detection. Presenting a revoked token revokes its whole family.
type RefreshLedger struct {
	records    RefreshRepository
	principals PrincipalRepository
	tx         Transactor
	codec      *credential.Codec
	recorder   audit.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewRefreshLedger creates a RefreshLedger.
func NewRefreshLedger(
	records RefreshRepository,
	principals PrincipalRepository,
	tx Transactor,
	codec *credential.Codec,
	recorder audit.Recorder,
	opts ...Option,
) (*RefreshLedger, error) {
	if records == nil || principals == nil || tx == nil || codec == nil {
		return nil, oops.Code("LEDGER_INVALID_DEPS").Errorf("refresh ledger dependencies cannot be nil")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	st := newSettings(opts)
	return &RefreshLedger{
		records:    records,
		principals: principals,
		tx:         tx,
		codec:      codec,
		recorder:   recorder,
		logger:     st.logger,
		now:        st.now,
	}, nil
}

// IssueNew starts a new family for p and stores its first record.
func (l *RefreshLedger) IssueNew(ctx context.Context, p *Principal, meta RequestMeta) (*IssuedRefresh, error) {
	return l.issue(ctx, p, "", meta)
}

func (l *RefreshLedger) issue(ctx context.Context, p *Principal, familyID string, meta RequestMeta) (*IssuedRefresh, error) {
	token, family, exp, err := l.codec.IssueRefresh(p.Subject(), familyID)
	if err != nil {
		return nil, oops.Code("REFRESH_ISSUE_FAILED").With("principal_id", p.ID.String()).Wrap(err)
	}
	rec := &RefreshRecord{
		ID:          ulid.Make(),
		PrincipalID: p.ID,
		TokenHash:   HashToken(token),
		FamilyID:    family,
		IssuedAt:    l.now(),
		ExpiresAt:   exp,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	}
	if err := l.records.Create(ctx, rec); err != nil {
		return nil, oops.Code("REFRESH_ISSUE_FAILED").
			With("principal_id", p.ID.String()).
			With("family_id", family).
			Wrap(err)
	}
	return &IssuedRefresh{Token: token, Record: rec}, nil
}

// Rotate exchanges a refresh token for a new token pair in the same family.
//
// Of two concurrent calls with the same token exactly one succeeds; the
// other takes the reuse path and fails with TOKEN_REUSE_DETECTED.
func (l *RefreshLedger) Rotate(ctx context.Context, rawToken string, meta RequestMeta) (*Principal, *TokenPair, error) {
	claims, err := l.codec.VerifyRefresh(rawToken)
	if err != nil {
		return nil, nil, err
	}

	rec, err := l.records.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errTokenInvalid("unknown refresh token")
		}
		return nil, nil, oops.Code("REFRESH_LOOKUP_FAILED").Wrap(err)
	}
	if rec.PrincipalID.String() != claims.Subject || rec.FamilyID != claims.FamilyID {
		return nil, nil, errTokenInvalid("token does not match record")
	}

	if rec.RevokedAt != nil {
		return nil, nil, l.reuseDetected(ctx, rec, meta)
	}

	p, err := l.principals.GetByID(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errTokenInvalid("principal not found")
		}
		return nil, nil, oops.Code("REFRESH_LOOKUP_FAILED").With("principal_id", rec.PrincipalID.String()).Wrap(err)
	}
	if !p.IsActive {
		return nil, nil, errTokenInvalid("principal inactive")
	}

	var next *IssuedRefresh
	err = l.tx.InTransaction(ctx, func(ctx context.Context) error {
		revoked, err := l.records.RevokeIfActive(ctx, rec.ID, l.now(), RevokeRotated)
		if err != nil {
			return oops.Code("REFRESH_ROTATE_FAILED").With("record_id", rec.ID.String()).Wrap(err)
		}
		if !revoked {
			return errRotationLost
		}
		next, err = l.issue(ctx, p, rec.FamilyID, meta)
		return err
	})
	if errors.Is(err, errRotationLost) {
		return nil, nil, l.reuseDetected(ctx, rec, meta)
	}
	if err != nil {
		return nil, nil, err
	}

	access, accessExp, err := l.codec.IssueAccess(p.Subject())
	if err != nil {
		return nil, nil, oops.Code("REFRESH_ROTATE_FAILED").Wrap(err)
	}
	return p, &TokenPair{
		AccessToken:      access,
		RefreshToken:     next.Token,
		ExpiresIn:        l.codec.ExpiresIn(),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.Record.ExpiresAt,
	}, nil
}

// reuseDetected revokes the family of rec, records the event and returns
// TOKEN_REUSE_DETECTED.
func (l *RefreshLedger) reuseDetected(ctx context.Context, rec *RefreshRecord, meta RequestMeta) error {
	n, err := l.records.RevokeFamily(ctx, rec.FamilyID, l.now(), RevokeReuseDetected)
	if err != nil {
		// The token is still refused; the family revocation is retried on
		// the next presentation of any of its tokens.
		return oops.Code("REFRESH_REVOKE_FAMILY_FAILED").
			With("family_id", rec.FamilyID).
			Wrap(err)
	}
	ReuseDetections.Inc()

	e := meta.event(audit.EventTokenReuseDetected, nil, map[string]any{
		"family_id":       rec.FamilyID,
		"revoked_count":   n,
		"original_reason": rec.RevokedReason,
	})
	e.PrincipalID = rec.PrincipalID.String()
	emit(ctx, l.recorder, l.logger, e)

	return oops.Code(CodeTokenReuseDetected).
		With("family_id", rec.FamilyID).
		Errorf("refresh token reuse detected")
}

// Revoke revokes the principal's record for rawToken. Unknown, foreign or
// already revoked tokens are not an error.
func (l *RefreshLedger) Revoke(ctx context.Context, principalID ulid.ULID, rawToken, reason string) (bool, error) {
	n, err := l.records.RevokeByTokenHash(ctx, principalID, HashToken(rawToken), l.now(), reason)
	if err != nil {
		return false, oops.Code("REFRESH_REVOKE_FAILED").With("principal_id", principalID.String()).Wrap(err)
	}
	return n > 0, nil
}

// RevokeAll revokes every live record of the principal.
func (l *RefreshLedger) RevokeAll(ctx context.Context, principalID ulid.ULID, reason string) (int64, error) {
	n, err := l.records.RevokeAllForPrincipal(ctx, principalID, l.now(), reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("principal_id", principalID.String()).
			With("reason", reason).
			Wrap(err)
	}
	return n, nil
}

// ListActive returns the live records of a principal.
func (l *RefreshLedger) ListActive(ctx context.Context, principalID ulid.ULID) ([]*RefreshRecord, error) {
	recs, err := l.records.ListActive(ctx, principalID, l.now())
	if err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").With("principal_id", principalID.String()).Wrap(err)
	}
	return recs, nil
}
