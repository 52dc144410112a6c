// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/pkg/errutil"
)

// RequestMeta describes where a request came from. It is attached to
// refresh records and security events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

func (m RequestMeta) event(t audit.EventType, p *Principal, details map[string]any) audit.Event {
	e := audit.Event{
		Type:      t,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		RequestID: m.RequestID,
		Details:   details,
	}
	if p != nil {
		e.PrincipalID = p.ID.String()
		e.Email = audit.MaskEmail(p.Email)
	}
	return e
}

// emit records e and logs, but never returns, a recorder failure.
func emit(ctx context.Context, rec audit.Recorder, logger *slog.Logger, e audit.Event) {
	if err := rec.Record(ctx, e); err != nil {
		errutil.LogErrorContext(ctx, logger, "record security event", err, "event", string(e.Type))
	}
}
