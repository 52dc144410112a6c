// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", ready, quiet)
	_, err := s.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_MetricsIncludeRegisteredCollectors(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, quiet)
	logins := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_test_logins_total",
		Help: "test counter",
	})
	s.Registry().MustRegister(logins)
	logins.Add(3)
	s.SetBuildInfo("1.2.3", "abc123")

	_, err := s.Start()
	require.NoError(t, err)
	defer func() { _ = s.Stop(context.Background()) }()

	status, body := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "authcore_test_logins_total 3")
	assert.Contains(t, body, `authcore_build_info{commit="abc123",version="1.2.3"} 1`)
}

func TestServer_Liveness(t *testing.T) {
	s := startServer(t, func(context.Context) error { return errors.New("db down") })

	status, body := get(t, s, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status, "liveness ignores readiness")
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		status int
		body   string
	}{
		{"ready", func(context.Context) error { return nil }, http.StatusOK, "ok\n"},
		{"not ready", func(context.Context) error { return errors.New("ping failed") }, http.StatusServiceUnavailable, "not ready\n"},
		{"no checker", nil, http.StatusOK, "ok\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startServer(t, tt.ready)
			status, body := get(t, s, "/healthz/readiness")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestServer_ReadinessCheckerGetsDeadline(t *testing.T) {
	var hadDeadline bool
	s := startServer(t, func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})

	status, _ := get(t, s, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, hadDeadline)
}

func TestServer_DoubleStartFails(t *testing.T) {
	s := startServer(t, nil)

	_, err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServer_StopIsIdempotent(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, quiet)
	require.NoError(t, s.Stop(context.Background()), "stop before start")

	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartFailsOnBusyAddress(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	s := NewServer(l.Addr().String(), nil, quiet)
	_, err = s.Start()
	require.Error(t, err)

	// A failed start leaves the server startable.
	s.addr = "127.0.0.1:0"
	_, err = s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, quiet)
	errCh, err := s.Start()
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "channel should close without an error, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after Stop")
	}
}
