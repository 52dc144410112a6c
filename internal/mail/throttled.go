// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
)

// CodeThrottled is returned when a message is dropped by ThrottledMailer.
const CodeThrottled = "MAIL_THROTTLED"

// DroppedMessages counts reset messages refused by a ThrottledMailer.
var DroppedMessages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_mail_dropped_total",
		Help: "Total number of reset messages dropped by the outbound mail throttle",
	},
	[]string{"scope"},
)

// RegisterMetrics registers the mail metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(DroppedMessages)
}

// ThrottleConfig bounds outbound reset mail.
type ThrottleConfig struct {
	// PerMinute is the overall send rate. Zero disables the overall limit.
	PerMinute int
	// Burst is the overall burst size. Defaults to PerMinute.
	Burst int
	// PerRecipient is the minimum spacing between two messages to the same
	// address. Zero disables the per-recipient limit.
	PerRecipient time.Duration
	// MaxRecipients caps the tracked addresses; the least recently used is
	// evicted past the cap.
	MaxRecipients int
	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultThrottleConfig allows 60 messages a minute and one message per
// address every 5 minutes.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		PerMinute:     60,
		PerRecipient:  5 * time.Minute,
		MaxRecipients: 10000,
	}
}

type recipient struct {
	address string
	limiter *rate.Limiter
}

// ThrottledMailer drops reset messages that exceed the configured rates
// instead of queueing them.
type ThrottledMailer struct {
	next   auth.Mailer
	cfg    ThrottleConfig
	global *rate.Limiter
	now    func() time.Time

	mu         sync.Mutex
	recipients map[string]*list.Element
	lru        *list.List
}

// NewThrottledMailer wraps next.
func NewThrottledMailer(next auth.Mailer, cfg ThrottleConfig) *ThrottledMailer {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = DefaultThrottleConfig().MaxRecipients
	}
	m := &ThrottledMailer{
		next:       next,
		cfg:        cfg,
		now:        cfg.Clock,
		recipients: make(map[string]*list.Element),
		lru:        list.New(),
	}
	if cfg.PerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.PerMinute
		}
		m.global = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), burst)
	}
	return m
}

// SendPasswordReset implements auth.Mailer.
func (m *ThrottledMailer) SendPasswordReset(ctx context.Context, to, rawToken, displayName string) error {
	if err := m.admit(to); err != nil {
		return err
	}
	return m.next.SendPasswordReset(ctx, to, rawToken, displayName)
}

// ReservePasswordReset implements auth.MailReserver.
func (m *ThrottledMailer) ReservePasswordReset(_ context.Context, to string) (auth.ResetSender, error) {
	if err := m.admit(to); err != nil {
		return nil, err
	}
	return func(ctx context.Context, rawToken, displayName string) error {
		return m.next.SendPasswordReset(ctx, to, rawToken, displayName)
	}, nil
}

func (m *ThrottledMailer) admit(to string) error {
	now := m.now()
	if !m.allowRecipient(strings.ToLower(to), now) {
		DroppedMessages.WithLabelValues("recipient").Inc()
		return oops.Code(CodeThrottled).With("scope", "recipient").With("to", audit.MaskEmail(to)).
			Errorf("reset mail to this address sent too recently")
	}
	if m.global != nil && !m.global.AllowN(now, 1) {
		DroppedMessages.WithLabelValues("global").Inc()
		return oops.Code(CodeThrottled).With("scope", "global").Errorf("outbound reset mail rate exceeded")
	}
	return nil
}

// Tracked returns the number of addresses with a live per-recipient limiter.
func (m *ThrottledMailer) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recipients)
}

func (m *ThrottledMailer) allowRecipient(address string, now time.Time) bool {
	if m.cfg.PerRecipient <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.recipients[address]; ok {
		m.lru.MoveToFront(elem)
		return elem.Value.(*recipient).limiter.AllowN(now, 1)
	}

	if len(m.recipients) >= m.cfg.MaxRecipients {
		if oldest := m.lru.Back(); oldest != nil {
			delete(m.recipients, oldest.Value.(*recipient).address)
			m.lru.Remove(oldest)
		}
	}
	r := &recipient{address: address, limiter: rate.NewLimiter(rate.Every(m.cfg.PerRecipient), 1)}
	m.recipients[address] = m.lru.PushFront(r)
	return r.limiter.AllowN(now, 1)
}

var (
	_ auth.Mailer       = (*ThrottledMailer)(nil)
	_ auth.MailReserver = (*ThrottledMailer)(nil)
)
