// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory implementations of the auth
// repositories for tests. They honour the same conditional-update semantics
// as the Postgres repositories.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authcore/internal/auth"
)

type txKey struct{}

type txLog struct {
	undo []func()
}

// Store holds all in-memory tables and implements auth.Transactor.
// Transactions are serialized; a failed transaction replays its undo log.
type Store struct {
	mu         sync.Mutex
	principals map[ulid.ULID]*auth.Principal
	refresh    map[ulid.ULID]*auth.RefreshRecord
	resets     map[ulid.ULID]*auth.ResetToken
	attempts   []auth.LoginAttempt
	failures   map[string]error

	txMu sync.Mutex
}

var _ auth.Transactor = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		principals: make(map[ulid.ULID]*auth.Principal),
		refresh:    make(map[ulid.ULID]*auth.RefreshRecord),
		resets:     make(map[ulid.ULID]*auth.ResetToken),
		failures:   make(map[string]error),
	}
}

// Fail makes every later call of op return err until cleared with a nil
// err. Ops are named "<table>.<Method>", e.g. "refresh.Create".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// InTransaction implements auth.Transactor. Nested calls join the outer
// transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txLog); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	log := &txLog{}
	if err := fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		s.mu.Lock()
		for i := len(log.undo) - 1; i >= 0; i-- {
			log.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock acquires the table lock and checks for an injected failure. Calls
// outside a transaction also wait for any running transaction, so
// uncommitted writes are never observed.
func (s *Store) lock(ctx context.Context, op string) (func(), error) {
	_, inTx := ctx.Value(txKey{}).(*txLog)
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	unlock := func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
	if err, ok := s.failures[op]; ok {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// onRollback registers undo for the transaction in ctx, if any. Called with
// s.mu held.
func onRollback(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(txKey{}).(*txLog); ok {
		log.undo = append(log.undo, undo)
	}
}

// Principals returns the principal repository.
func (s *Store) Principals() *PrincipalRepo { return &PrincipalRepo{s: s} }

// Refresh returns the refresh record repository.
func (s *Store) Refresh() *RefreshRepo { return &RefreshRepo{s: s} }

// Resets returns the reset token repository.
func (s *Store) Resets() *ResetRepo { return &ResetRepo{s: s} }

// Attempts returns the login attempt repository.
func (s *Store) Attempts() *AttemptRepo { return &AttemptRepo{s: s} }

// PrincipalRepo is an in-memory auth.PrincipalRepository.
type PrincipalRepo struct{ s *Store }

var _ auth.PrincipalRepository = (*PrincipalRepo)(nil)

// Create implements auth.PrincipalRepository.
func (r *PrincipalRepo) Create(ctx context.Context, p *auth.Principal) error {
	unlock, err := r.s.lock(ctx, "principals.Create")
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range r.s.principals {
		if strings.EqualFold(existing.Email, p.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	cp := *p
	r.s.principals[p.ID] = &cp
	onRollback(ctx, func() { delete(r.s.principals, p.ID) })
	return nil
}

// GetByID implements auth.PrincipalRepository.
func (r *PrincipalRepo) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	unlock, err := r.s.lock(ctx, "principals.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clonePrincipal(p), nil
}

// GetByEmail implements auth.PrincipalRepository.
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	unlock, err := r.s.lock(ctx, "principals.GetByEmail")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, p := range r.s.principals {
		if strings.EqualFold(p.Email, email) {
			return clonePrincipal(p), nil
		}
	}
	return nil, auth.ErrNotFound
}

// RecordLoginFailure implements auth.PrincipalRepository.
func (r *PrincipalRepo) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (auth.LockoutState, error) {
	unlock, err := r.s.lock(ctx, "principals.RecordLoginFailure")
	if err != nil {
		return auth.LockoutState{}, err
	}
	defer unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return auth.LockoutState{}, auth.ErrNotFound
	}
	prev := clonePrincipal(p)
	onRollback(ctx, func() { restoreLockout(p, prev) })

	p.FailedLoginAttempts++
	if p.FailedLoginAttempts >= threshold {
		lu := lockUntil
		p.LockedUntil = &lu
	}
	return auth.LockoutState{FailedLoginAttempts: p.FailedLoginAttempts, LockedUntil: cloneTime(p.LockedUntil)}, nil
}

// ClearLockout implements auth.PrincipalRepository.
func (r *PrincipalRepo) ClearLockout(ctx context.Context, id ulid.ULID) error {
	unlock, err := r.s.lock(ctx, "principals.ClearLockout")
	if err != nil {
		return err
	}
	defer unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	prev := clonePrincipal(p)
	onRollback(ctx, func() { restoreLockout(p, prev) })
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	return nil
}

// ClearExpiredLockout implements auth.PrincipalRepository.
func (r *PrincipalRepo) ClearExpiredLockout(ctx context.Context, id ulid.ULID, now time.Time) (bool, error) {
	unlock, err := r.s.lock(ctx, "principals.ClearExpiredLockout")
	if err != nil {
		return false, err
	}
	defer unlock()
	p, ok := r.s.principals[id]
	if !ok || p.LockedUntil == nil || p.LockedUntil.After(now) {
		return false, nil
	}
	prev := clonePrincipal(p)
	onRollback(ctx, func() { restoreLockout(p, prev) })
	p.FailedLoginAttempts = 0
	p.LockedUntil = nil
	return true, nil
}

// UpdatePasswordHash implements auth.PrincipalRepository.
func (r *PrincipalRepo) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	unlock, err := r.s.lock(ctx, "principals.UpdatePasswordHash")
	if err != nil {
		return err
	}
	defer unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	prev := p.PasswordHash
	onRollback(ctx, func() { p.PasswordHash = prev })
	p.PasswordHash = hash
	return nil
}

// SetActive flips the active flag of a principal.
func (r *PrincipalRepo) SetActive(id ulid.ULID, active bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.principals[id]; ok {
		p.IsActive = active
	}
}

// Put stores p as-is, bypassing uniqueness checks.
func (r *PrincipalRepo) Put(p *auth.Principal) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.principals[p.ID] = clonePrincipal(p)
}

// RefreshRepo is an in-memory auth.RefreshRepository.
type RefreshRepo struct{ s *Store }

var _ auth.RefreshRepository = (*RefreshRepo)(nil)

// Create implements auth.RefreshRepository.
func (r *RefreshRepo) Create(ctx context.Context, rec *auth.RefreshRecord) error {
	unlock, err := r.s.lock(ctx, "refresh.Create")
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range r.s.refresh {
		if existing.TokenHash == rec.TokenHash {
			return auth.ErrDuplicateToken
		}
	}
	r.s.refresh[rec.ID] = cloneRecord(rec)
	onRollback(ctx, func() { delete(r.s.refresh, rec.ID) })
	return nil
}

// GetByTokenHash implements auth.RefreshRepository.
func (r *RefreshRepo) GetByTokenHash(ctx context.Context, hash string) (*auth.RefreshRecord, error) {
	unlock, err := r.s.lock(ctx, "refresh.GetByTokenHash")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, rec := range r.s.refresh {
		if rec.TokenHash == hash {
			return cloneRecord(rec), nil
		}
	}
	return nil, auth.ErrNotFound
}

// RevokeIfActive implements auth.RefreshRepository.
func (r *RefreshRepo) RevokeIfActive(ctx context.Context, id ulid.ULID, at time.Time, reason string) (bool, error) {
	unlock, err := r.s.lock(ctx, "refresh.RevokeIfActive")
	if err != nil {
		return false, err
	}
	defer unlock()
	rec, ok := r.s.refresh[id]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	r.revoke(ctx, rec, at, reason)
	return true, nil
}

// RevokeFamily implements auth.RefreshRepository.
func (r *RefreshRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time, reason string) (int64, error) {
	return r.revokeWhere(ctx, "refresh.RevokeFamily", at, reason, func(rec *auth.RefreshRecord) bool {
		return rec.FamilyID == familyID
	})
}

// RevokeByTokenHash implements auth.RefreshRepository.
func (r *RefreshRepo) RevokeByTokenHash(ctx context.Context, principalID ulid.ULID, hash string, at time.Time, reason string) (int64, error) {
	return r.revokeWhere(ctx, "refresh.RevokeByTokenHash", at, reason, func(rec *auth.RefreshRecord) bool {
		return rec.PrincipalID == principalID && rec.TokenHash == hash
	})
}

// RevokeAllForPrincipal implements auth.RefreshRepository.
func (r *RefreshRepo) RevokeAllForPrincipal(ctx context.Context, principalID ulid.ULID, at time.Time, reason string) (int64, error) {
	return r.revokeWhere(ctx, "refresh.RevokeAllForPrincipal", at, reason, func(rec *auth.RefreshRecord) bool {
		return rec.PrincipalID == principalID
	})
}

func (r *RefreshRepo) revokeWhere(ctx context.Context, op string, at time.Time, reason string, match func(*auth.RefreshRecord) bool) (int64, error) {
	unlock, err := r.s.lock(ctx, op)
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for _, rec := range r.s.refresh {
		if rec.RevokedAt == nil && match(rec) {
			r.revoke(ctx, rec, at, reason)
			n++
		}
	}
	return n, nil
}

// revoke is called with s.mu held.
func (r *RefreshRepo) revoke(ctx context.Context, rec *auth.RefreshRecord, at time.Time, reason string) {
	t := at
	rec.RevokedAt = &t
	rec.RevokedReason = reason
	onRollback(ctx, func() {
		rec.RevokedAt = nil
		rec.RevokedReason = ""
	})
}

// ListActive implements auth.RefreshRepository.
func (r *RefreshRepo) ListActive(ctx context.Context, principalID ulid.ULID, now time.Time) ([]*auth.RefreshRecord, error) {
	unlock, err := r.s.lock(ctx, "refresh.ListActive")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*auth.RefreshRecord
	for _, rec := range r.s.refresh {
		if rec.PrincipalID == principalID && rec.IsLiveAt(now) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// DeleteExpired implements auth.RefreshRepository.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx, "refresh.DeleteExpired")
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, rec := range r.s.refresh {
		if rec.ExpiresAt.Before(cutoff) {
			delete(r.s.refresh, id)
			n++
		}
	}
	return n, nil
}

// Family returns copies of every record in a family.
func (r *RefreshRepo) Family(familyID string) []*auth.RefreshRecord {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*auth.RefreshRecord
	for _, rec := range r.s.refresh {
		if rec.FamilyID == familyID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

// All returns copies of every record.
func (r *RefreshRepo) All() []*auth.RefreshRecord {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*auth.RefreshRecord, 0, len(r.s.refresh))
	for _, rec := range r.s.refresh {
		out = append(out, cloneRecord(rec))
	}
	return out
}

// ResetRepo is an in-memory auth.ResetTokenRepository.
type ResetRepo struct{ s *Store }

var _ auth.ResetTokenRepository = (*ResetRepo)(nil)

// Create implements auth.ResetTokenRepository.
func (r *ResetRepo) Create(ctx context.Context, t *auth.ResetToken) error {
	unlock, err := r.s.lock(ctx, "resets.Create")
	if err != nil {
		return err
	}
	defer unlock()
	for id, old := range r.s.resets {
		if old.PrincipalID == t.PrincipalID {
			delete(r.s.resets, id)
			onRollback(ctx, func() { r.s.resets[id] = old })
		}
	}
	cp := *t
	r.s.resets[t.ID] = &cp
	onRollback(ctx, func() { delete(r.s.resets, t.ID) })
	return nil
}

// GetByTokenHash implements auth.ResetTokenRepository.
func (r *ResetRepo) GetByTokenHash(ctx context.Context, hash string) (*auth.ResetToken, error) {
	unlock, err := r.s.lock(ctx, "resets.GetByTokenHash")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, t := range r.s.resets {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Delete implements auth.ResetTokenRepository.
func (r *ResetRepo) Delete(ctx context.Context, id ulid.ULID) (bool, error) {
	unlock, err := r.s.lock(ctx, "resets.Delete")
	if err != nil {
		return false, err
	}
	defer unlock()
	t, ok := r.s.resets[id]
	if !ok {
		return false, nil
	}
	delete(r.s.resets, id)
	onRollback(ctx, func() { r.s.resets[id] = t })
	return true, nil
}

// DeleteByPrincipal implements auth.ResetTokenRepository.
func (r *ResetRepo) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) (int64, error) {
	unlock, err := r.s.lock(ctx, "resets.DeleteByPrincipal")
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, t := range r.s.resets {
		if t.PrincipalID == principalID {
			delete(r.s.resets, id)
			onRollback(ctx, func() { r.s.resets[id] = t })
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements auth.ResetTokenRepository.
func (r *ResetRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx, "resets.DeleteExpired")
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for id, t := range r.s.resets {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.s.resets, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored reset tokens of a principal.
func (r *ResetRepo) Count(principalID ulid.ULID) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.resets {
		if t.PrincipalID == principalID {
			n++
		}
	}
	return n
}

// AttemptRepo is an in-memory auth.LoginAttemptRepository.
type AttemptRepo struct{ s *Store }

var _ auth.LoginAttemptRepository = (*AttemptRepo)(nil)

// Record implements auth.LoginAttemptRepository.
func (r *AttemptRepo) Record(ctx context.Context, a auth.LoginAttempt) error {
	unlock, err := r.s.lock(ctx, "attempts.Record")
	if err != nil {
		return err
	}
	defer unlock()
	r.s.attempts = append(r.s.attempts, a)
	return nil
}

// DeleteBefore implements auth.LoginAttemptRepository.
func (r *AttemptRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	unlock, err := r.s.lock(ctx, "attempts.DeleteBefore")
	if err != nil {
		return 0, err
	}
	defer unlock()
	kept := r.s.attempts[:0]
	var n int64
	for _, a := range r.s.attempts {
		if a.AttemptedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.s.attempts = kept
	return n, nil
}

// All returns a copy of the recorded attempts.
func (r *AttemptRepo) All() []auth.LoginAttempt {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]auth.LoginAttempt(nil), r.s.attempts...)
}

func clonePrincipal(p *auth.Principal) *auth.Principal {
	cp := *p
	cp.LockedUntil = cloneTime(p.LockedUntil)
	return &cp
}

func cloneRecord(r *auth.RefreshRecord) *auth.RefreshRecord {
	cp := *r
	cp.RevokedAt = cloneTime(r.RevokedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func restoreLockout(p, prev *auth.Principal) {
	p.FailedLoginAttempts = prev.FailedLoginAttempts
	p.LockedUntil = prev.LockedUntil
}
