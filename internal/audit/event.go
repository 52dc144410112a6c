// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package audit records security events emitted by the session flows.
package audit

import (
	"log/slog"
	"strings"
	"time"
)

// EventType names a security event.
type EventType string

// Security event types.
const (
	EventRegister               EventType = "AUTH_REGISTER"
	EventLoginSuccess           EventType = "AUTH_LOGIN_SUCCESS"
	EventLoginFailed            EventType = "AUTH_LOGIN_FAILED"
	EventTokenRefresh           EventType = "AUTH_TOKEN_REFRESH"
	EventTokenReuseDetected     EventType = "AUTH_TOKEN_REUSE_DETECTED"
	EventLogout                 EventType = "AUTH_LOGOUT"
	EventLogoutAll              EventType = "AUTH_LOGOUT_ALL"
	EventPasswordChanged        EventType = "AUTH_PASSWORD_CHANGED"
	EventPasswordResetRequested EventType = "AUTH_PASSWORD_RESET_REQUESTED"
	EventPasswordResetCompleted EventType = "AUTH_PASSWORD_RESET_COMPLETED"
	EventAccountLocked          EventType = "AUTH_ACCOUNT_LOCKED"
	EventSuspiciousInput        EventType = "SUSPICIOUS_INPUT"
)

// Severity is the level an event is reported at.
type Severity string

// Severities.
const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// SeverityFor returns the fixed severity of an event type.
func SeverityFor(t EventType) Severity {
	switch t {
	case EventTokenReuseDetected, EventAccountLocked, EventSuspiciousInput:
		return SeverityError
	case EventLoginFailed:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// Level maps a severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityError:
		return slog.LevelError
	case SeverityWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Event is a single security event. Email must already be masked.
type Event struct {
	Type        EventType      `json:"type"`
	Severity    Severity       `json:"severity"`
	PrincipalID string         `json:"principal_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// normalize fills in severity and timestamp when unset.
func (e Event) normalize(now func() time.Time) Event {
	if e.Severity == "" {
		e.Severity = SeverityFor(e.Type)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now().UTC()
	}
	return e
}

// MaskEmail hides the local part of an address, keeping its first and last
// characters: "alice@example.com" becomes "a***e@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***@***"
	}
	r := []rune(local)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r)) + "@" + domain
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1]) + "@" + domain
}
