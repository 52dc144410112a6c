// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/credential"
)

// Role is the account role carried in access tokens.
type Role string

// Roles a principal may register with.
const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleWorker
}

// Principal is a user account.
type Principal struct {
	ID                  ulid.ULID
	Email               string
	DisplayName         string
	PasswordHash        string
	Role                Role
	FailedLoginAttempts int
	LockedUntil         *time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewPrincipal creates an active principal with a fresh ID. The email is
// normalized to lower case.
func NewPrincipal(email, displayName, passwordHash string, role Role, now time.Time) (*Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("PRINCIPAL_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("PRINCIPAL_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("PRINCIPAL_INVALID_ROLE").With("role", string(role)).Errorf("unknown role")
	}
	return &Principal{
		ID:           ulid.Make(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsLockedAt reports whether the lock is still in force at t.
func (p *Principal) IsLockedAt(t time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(t)
}

// Subject returns the token subject for p.
func (p *Principal) Subject() credential.Subject {
	return credential.Subject{ID: p.ID.String(), Email: p.Email, Role: string(p.Role)}
}

// View returns the fields of p that are safe to hand to callers.
func (p *Principal) View() PrincipalView {
	return PrincipalView{
		ID:          p.ID.String(),
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
	}
}

// PrincipalView is the caller-safe projection of a Principal.
type PrincipalView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LockoutState is the lockout fields of a principal after an update.
type LockoutState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// PrincipalRepository manages principal persistence.
type PrincipalRepository interface {
	// Create stores a new principal. Returns ErrDuplicateEmail if the
	// address is taken.
	Create(ctx context.Context, p *Principal) error

	// GetByID returns ErrNotFound if no principal has the ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByEmail matches case-insensitively. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// RecordLoginFailure increments the failure counter in a single
	// statement and sets locked_until to lockUntil once the new count
	// reaches threshold.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (LockoutState, error)

	// ClearLockout resets the counter and lock unconditionally.
	ClearLockout(ctx context.Context, id ulid.ULID) error

	// ClearExpiredLockout resets the counter and lock only if the lock
	// ended at or before now. Reports whether a row changed.
	ClearExpiredLockout(ctx context.Context, id ulid.ULID, now time.Time) (bool, error)

	// UpdatePasswordHash replaces the stored hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}
