// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FlowResults counts flow completions by outcome. The outcome is "ok" or
// the lower-cased error code.
// Use RegisterMetrics to register this with a Prometheus registry.
var FlowResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_flow_results_total",
		Help: "Total number of session flow completions by outcome",
	},
	[]string{"flow", "outcome"},
)

// FlowDuration is the histogram of flow latency.
var FlowDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authcore_flow_duration_seconds",
		Help:    "Session flow duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"flow"},
)

// ReuseDetections counts refresh token families revoked for reuse.
var ReuseDetections = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "authcore_refresh_reuse_detections_total",
	Help: "Total number of refresh token reuse detections",
})

// AccountLockouts counts accounts that crossed the lockout threshold.
var AccountLockouts = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "authcore_account_lockouts_total",
	Help: "Total number of account lockouts",
})

// SweptRows counts rows removed by the Sweeper, by table.
var SweptRows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_swept_rows_total",
		Help: "Total number of expired rows purged by the sweeper",
	},
	[]string{"table"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(FlowResults, FlowDuration, ReuseDetections, AccountLockouts, SweptRows)
}

func observeFlow(flow string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(Code(err))
		if !IsExpected(err) {
			outcome = "internal"
		}
	}
	FlowResults.WithLabelValues(flow, outcome).Inc()
	FlowDuration.WithLabelValues(flow).Observe(time.Since(start).Seconds())
}
