// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/store"
)

const testDatabaseURL = "postgres://authcore@localhost:5432/authcore"

// setServiceEnv provides the minimum configuration every service command
// needs and disables the metrics listener.
func setServiceEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHCORE_DATABASE_URL", testDatabaseURL)
	t.Setenv("AUTHCORE_TOKENS_ACCESS_SECRET", "access-secret-access-secret-0123456789")
	t.Setenv("AUTHCORE_TOKENS_REFRESH_SECRET", "refresh-secret-refresh-secret-0123456789")
	t.Setenv("AUTHCORE_METRICS_ADDR", "")
	t.Setenv("AUTHCORE_DATABASE_AUTO_MIGRATE", "false")
}

// execute runs the root command with args and returns its output.
func execute(ctx context.Context, t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

// mockDeps returns Deps that hand out mock and discard all output.
func mockDeps(mock pgxmock.PgxPoolIface) *Deps {
	return &Deps{
		PoolFactory: func(context.Context, config.DatabaseConfig) (Pool, error) {
			return mock, nil
		},
		LogOutput:  io.Discard,
		MailOutput: io.Discard,
	}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// fakeMigrator records the calls made on it.
type fakeMigrator struct {
	calls     []string
	steps     []int
	forced    []int
	status    store.Status
	upErr     error
	statusErr error
	closed    bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = append(m.steps, n)
	return nil
}

func (m *fakeMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.forced = append(m.forced, version)
	return nil
}

func (m *fakeMigrator) Status() (store.Status, error) {
	m.calls = append(m.calls, "status")
	return m.status, m.statusErr
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func testStatus() store.Status {
	return store.Status{Version: 2, Name: "000002_security_events", Applied: []uint{1, 2}}
}
