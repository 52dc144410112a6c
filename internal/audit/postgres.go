// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Execer is the subset of pgxpool.Pool used by PostgresWriter.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresWriter stores events in the security_events table. Writes are
// synchronous so an event is durable before the flow that raised it returns.
type PostgresWriter struct {
	db  Execer
	now func() time.Time
}

// NewPostgresWriter creates a PostgresWriter.
func NewPostgresWriter(db Execer) *PostgresWriter {
	return &PostgresWriter{db: db, now: time.Now}
}

// Record implements Recorder.
func (w *PostgresWriter) Record(ctx context.Context, e Event) error {
	e = e.normalize(w.now)

	details, err := json.Marshal(e.Details)
	if err != nil {
		return oops.Code("AUDIT_ENCODE_FAILED").With("event", string(e.Type)).Wrap(err)
	}

	_, err = w.db.Exec(ctx, `
		INSERT INTO security_events (
			id, event_type, severity, principal_id, email, ip_address,
			user_agent, request_id, details, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		ulid.Make().String(),
		string(e.Type),
		string(e.Severity),
		nullable(e.PrincipalID),
		nullable(e.Email),
		nullable(e.IPAddress),
		nullable(e.UserAgent),
		nullable(e.RequestID),
		details,
		e.Timestamp,
	)
	if err != nil {
		return oops.Code("AUDIT_WRITE_FAILED").
			With("event", string(e.Type)).
			With("principal_id", e.PrincipalID).
			Wrap(err)
	}
	return nil
}

// PurgeBefore deletes events that occurred before cutoff and returns the
// number of rows removed.
func (w *PostgresWriter) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := w.db.Exec(ctx, `DELETE FROM security_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("AUDIT_PURGE_FAILED").With("cutoff", cutoff).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
