// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/internal/mail"
	"github.com/holomush/authcore/internal/throttle"
)

// ValidateDatabase checks only the settings needed to reach the store.
func (c *Config) ValidateDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return oops.Code("CONFIG_INVALID").
			With("violations", []string{"database.url is required"}).
			Errorf("invalid configuration: database.url is required")
	}
	return nil
}

// Validate checks the whole configuration and reports every violation at
// once in the "violations" context key.
func (c *Config) Validate() error {
	var v []string
	add := func(format string, args ...any) { v = append(v, fmt.Sprintf(format, args...)) }

	if strings.TrimSpace(c.Database.URL) == "" {
		add("database.url is required")
	}
	if c.Database.MaxConns < 1 {
		add("database.max_conns must be at least 1")
	}

	switch {
	case len(c.Tokens.AccessSecret) < credential.MinSecretLength:
		add("tokens.access_secret must be at least %d bytes", credential.MinSecretLength)
	case c.Tokens.AccessSecret == c.Tokens.RefreshSecret:
		add("tokens.access_secret and tokens.refresh_secret must differ")
	}
	if len(c.Tokens.RefreshSecret) < credential.MinSecretLength {
		add("tokens.refresh_secret must be at least %d bytes", credential.MinSecretLength)
	}
	positive(add, "tokens.access_ttl", c.Tokens.AccessTTL)
	positive(add, "tokens.refresh_ttl", c.Tokens.RefreshTTL)
	if c.Tokens.AccessTTL > 0 && c.Tokens.RefreshTTL > 0 && c.Tokens.AccessTTL >= c.Tokens.RefreshTTL {
		add("tokens.access_ttl must be shorter than tokens.refresh_ttl")
	}

	if c.Lockout.Threshold < 1 {
		add("lockout.threshold must be at least 1")
	}
	positive(add, "lockout.duration", c.Lockout.Duration)
	positive(add, "reset.ttl", c.Reset.TTL)
	if u, err := url.Parse(c.Reset.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("reset.base_url must be an absolute URL")
	}

	positive(add, "throttle.gc_interval", c.Throttle.GCInterval)
	for name, s := range c.Throttle.strategies() {
		positive(add, "throttle."+name+".window", s.Window)
		if s.MaxRequests < 1 {
			add("throttle.%s.max_requests must be at least 1", name)
		}
	}

	positive(add, "sweeper.interval", c.Sweeper.Interval)
	if c.Sweeper.RefreshGrace < 0 || c.Sweeper.AttemptRetention < 0 || c.Sweeper.EventRetention < 0 {
		add("sweeper retention periods cannot be negative")
	}

	if c.Mail.RatePerMinute < 0 || c.Mail.PerRecipient < 0 {
		add("mail limits cannot be negative")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if len(v) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").
		With("violations", v).
		Errorf("invalid configuration: %s", strings.Join(v, "; "))
}

func positive(add func(string, ...any), key string, d time.Duration) {
	if d <= 0 {
		add("%s must be positive", key)
	}
}

func (t ThrottleConfig) strategies() map[string]StrategyConfig {
	return map[string]StrategyConfig{
		"login":           t.Login,
		"register":        t.Register,
		"refresh":         t.Refresh,
		"password_change": t.PasswordChange,
		"password_reset":  t.PasswordReset,
	}
}

// CodecConfig returns the credential codec settings.
func (c *Config) CodecConfig() credential.Config {
	return credential.Config{
		AccessSecret:  []byte(c.Tokens.AccessSecret),
		RefreshSecret: []byte(c.Tokens.RefreshSecret),
		AccessTTL:     c.Tokens.AccessTTL,
		RefreshTTL:    c.Tokens.RefreshTTL,
		Issuer:        c.Tokens.Issuer,
	}
}

// AuthConfig returns the orchestrator settings. Strategy names stay the
// ones the throttle package predefines so metrics labels are stable.
func (c *Config) AuthConfig() auth.Config {
	strategy := func(base throttle.Strategy, s StrategyConfig) throttle.Strategy {
		base.Window = s.Window
		base.MaxRequests = s.MaxRequests
		return base
	}
	return auth.Config{
		Strategies: auth.Strategies{
			Login:          strategy(throttle.Login, c.Throttle.Login),
			Register:       strategy(throttle.Register, c.Throttle.Register),
			Refresh:        strategy(throttle.Refresh, c.Throttle.Refresh),
			PasswordChange: strategy(throttle.PasswordChange, c.Throttle.PasswordChange),
			PasswordReset:  strategy(throttle.PasswordReset, c.Throttle.PasswordReset),
		},
		Lockout:  auth.LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration},
		ResetTTL: c.Reset.TTL,
	}
}

// GateConfig returns the throttle gate settings.
func (c *Config) GateConfig() throttle.Config {
	return throttle.Config{GCInterval: c.Throttle.GCInterval}
}

// SweeperConfig returns the purge loop settings.
func (c *Config) SweeperConfig() auth.SweeperConfig {
	return auth.SweeperConfig{
		Interval:         c.Sweeper.Interval,
		RefreshGrace:     c.Sweeper.RefreshGrace,
		AttemptRetention: c.Sweeper.AttemptRetention,
		EventRetention:   c.Sweeper.EventRetention,
	}
}

// MailThrottle returns the outbound reset mail limits.
func (c *Config) MailThrottle() mail.ThrottleConfig {
	cfg := mail.DefaultThrottleConfig()
	cfg.PerMinute = c.Mail.RatePerMinute
	cfg.PerRecipient = c.Mail.PerRecipient
	return cfg
}
