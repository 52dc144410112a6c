// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/authcore/pkg/errutil"
)

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_security_events_total",
		Help: "Total number of security events recorded",
	}, []string{"type"})

	failuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_security_event_failures_total",
		Help: "Total number of security events a sink failed to record",
	}, []string{"sink"})
)

// RegisterMetrics registers the audit counters with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(eventsCounter, failuresCounter)
}

// Recorder persists or reports a security event.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// SlogRecorder writes events as "[AUDIT] <TYPE>" log lines at the level
// matching their severity.
type SlogRecorder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewSlogRecorder creates a SlogRecorder. A nil logger uses slog.Default.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger.With("context", "security-audit"), now: time.Now}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(ctx context.Context, e Event) error {
	e = e.normalize(r.now)
	attrs := []any{
		"event", string(e.Type),
		"severity", string(e.Severity),
		"timestamp", e.Timestamp,
	}
	if e.PrincipalID != "" {
		attrs = append(attrs, "principal_id", e.PrincipalID)
	}
	if e.Email != "" {
		attrs = append(attrs, "email", e.Email)
	}
	if e.IPAddress != "" {
		attrs = append(attrs, "ip", e.IPAddress)
	}
	if e.UserAgent != "" {
		attrs = append(attrs, "user_agent", e.UserAgent)
	}
	if e.RequestID != "" {
		attrs = append(attrs, "request_id", e.RequestID)
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, "details", e.Details)
	}
	r.logger.Log(ctx, e.Severity.Level(), "[AUDIT] "+string(e.Type), attrs...)
	return nil
}

// Sink is a named Recorder inside a MultiRecorder.
type Sink struct {
	Name     string
	Recorder Recorder
}

// MultiRecorder fans an event out to every sink. A failing sink is logged
// and counted; Record itself never fails.
type MultiRecorder struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewMultiRecorder creates a MultiRecorder over sinks.
func NewMultiRecorder(logger *slog.Logger, sinks ...Sink) *MultiRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiRecorder{sinks: sinks, logger: logger, now: time.Now}
}

// Record implements Recorder.
func (m *MultiRecorder) Record(ctx context.Context, e Event) error {
	e = e.normalize(m.now)
	eventsCounter.WithLabelValues(string(e.Type)).Inc()
	for _, s := range m.sinks {
		if err := s.Recorder.Record(ctx, e); err != nil {
			failuresCounter.WithLabelValues(s.Name).Inc()
			errutil.LogErrorContext(ctx, m.logger, "audit sink failed", err,
				"sink", s.Name, "event", string(e.Type))
		}
	}
	return nil
}

// Nop discards events.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) error { return nil }
