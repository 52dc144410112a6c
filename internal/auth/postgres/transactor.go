// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/authcore/internal/auth"
)

// DefaultTxRetries is how many times a transaction aborted by a
// serialization failure or deadlock is run again.
const DefaultTxRetries = 3

// Transactor implements auth.Transactor using a pgx connection pool.
// It stores the active pgx.Tx in context so that repository methods
// participate in the same transaction.
type Transactor struct {
	pool    Pool
	retries uint64
	base    time.Duration
}

var _ auth.Transactor = (*Transactor)(nil)

// NewTransactor creates a Transactor backed by the given connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool, retries: DefaultTxRetries, base: 10 * time.Millisecond}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled
// back. A call made inside another transaction joins it.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(t.retries, retry.NewExponential(t.base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := t.run(ctx, fn)
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (t *Transactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
