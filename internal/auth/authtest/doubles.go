// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a Clock set to t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// SentReset is one captured password reset mail.
type SentReset struct {
	To          string
	Token       string
	DisplayName string
}

// Mailer captures password reset mails.
type Mailer struct {
	mu   sync.Mutex
	sent []SentReset
	err  error
}

var _ auth.Mailer = (*Mailer)(nil)

// FailWith makes later sends return err after capturing the mail.
func (m *Mailer) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SendPasswordReset implements auth.Mailer.
func (m *Mailer) SendPasswordReset(_ context.Context, to, token, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentReset{To: to, Token: token, DisplayName: displayName})
	return m.err
}

// Sent returns the captured mails.
func (m *Mailer) Sent() []SentReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentReset(nil), m.sent...)
}

// Last returns the most recent mail, or false if none was sent.
func (m *Mailer) Last() (SentReset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentReset{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Recorder captures security events.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

var _ audit.Recorder = (*Recorder)(nil)

// Record implements audit.Recorder.
func (r *Recorder) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns the captured events.
func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t audit.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Last returns the most recent event of type t.
func (r *Recorder) Last(t audit.EventType) (audit.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return audit.Event{}, false
}
