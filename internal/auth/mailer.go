// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Mailer delivers password reset tokens. Delivery is best effort; the
// forgot-password flow never reports a Mailer error to its caller.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, rawToken, displayName string) error
}

// ResetSender delivers one reset message to an address fixed by the
// reservation that produced it.
type ResetSender func(ctx context.Context, rawToken, displayName string) error

// MailReserver is implemented by mailers that may refuse a message. The
// forgot-password flow reserves delivery before it replaces the principal's
// reset token, so a refused message leaves the previously delivered token
// valid.
type MailReserver interface {
	// ReservePasswordReset claims a delivery slot for to. The returned
	// sender is not throttled again.
	ReservePasswordReset(ctx context.Context, to string) (ResetSender, error)
}
