// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Transactor runs fn in a single transaction. Repository calls made with
// the context passed to fn join that transaction. If fn returns an error
// the transaction is rolled back and the error is returned unchanged.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
