// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/holomush/authcore/internal/auth"

type settings struct {
	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// Option customizes the components in this package.
type Option func(*settings)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracer sets the tracer used for flow spans. The default comes from
// the global otel TracerProvider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger: slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
