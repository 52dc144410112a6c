// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authcore settings. Sources are layered, later ones
// winning: built-in defaults, an optional YAML file, AUTHCORE_* environment
// variables, then command-line flags that were set explicitly.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/internal/mail"
	"github.com/holomush/authcore/internal/throttle"
)

// EnvPrefix is the prefix of environment overrides. A key maps to its
// upper-cased path with dots replaced by underscores:
// tokens.access_secret is AUTHCORE_TOKENS_ACCESS_SECRET.
const EnvPrefix = "AUTHCORE_"

// Config is the complete authcore configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Lockout  LockoutConfig  `koanf:"lockout"`
	Reset    ResetConfig    `koanf:"reset"`
	Throttle ThrottleConfig `koanf:"throttle"`
	Sweeper  SweeperConfig  `koanf:"sweeper"`
	Mail     MailConfig     `koanf:"mail"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// DatabaseConfig locates the PostgreSQL store.
type DatabaseConfig struct {
	URL         string `koanf:"url"`
	MaxConns    int32  `koanf:"max_conns"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// TokensConfig configures the credential codec.
type TokensConfig struct {
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	Issuer        string        `koanf:"issuer"`
}

// LockoutConfig configures failed-login lockout.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	TTL     time.Duration `koanf:"ttl"`
	BaseURL string        `koanf:"base_url"`
}

// StrategyConfig is one throttle window.
type StrategyConfig struct {
	Window      time.Duration `koanf:"window"`
	MaxRequests int           `koanf:"max_requests"`
}

// ThrottleConfig holds the per-flow throttle windows.
type ThrottleConfig struct {
	GCInterval     time.Duration  `koanf:"gc_interval"`
	Login          StrategyConfig `koanf:"login"`
	Register       StrategyConfig `koanf:"register"`
	Refresh        StrategyConfig `koanf:"refresh"`
	PasswordChange StrategyConfig `koanf:"password_change"`
	PasswordReset  StrategyConfig `koanf:"password_reset"`
}

// SweeperConfig configures the background purge.
type SweeperConfig struct {
	Interval         time.Duration `koanf:"interval"`
	RefreshGrace     time.Duration `koanf:"refresh_grace"`
	AttemptRetention time.Duration `koanf:"attempt_retention"`
	EventRetention   time.Duration `koanf:"event_retention"`
}

// MailConfig configures the outbound reset mail throttle.
type MailConfig struct {
	RatePerMinute int           `koanf:"rate_per_minute"`
	PerRecipient  time.Duration `koanf:"per_recipient"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Defaults returns the built-in configuration as a flat key map.
func Defaults() map[string]any {
	sweeper := auth.DefaultSweeperConfig()
	mailCfg := mail.DefaultThrottleConfig()
	d := map[string]any{
		"database.url":          "",
		"database.max_conns":    int32(10),
		"database.auto_migrate": false,

		"tokens.access_secret":  "",
		"tokens.refresh_secret": "",
		"tokens.access_ttl":     credential.DefaultAccessTTL,
		"tokens.refresh_ttl":    credential.DefaultRefreshTTL,
		"tokens.issuer":         credential.DefaultIssuer,

		"lockout.threshold": auth.DefaultLockoutPolicy.Threshold,
		"lockout.duration":  auth.DefaultLockoutPolicy.Duration,

		"reset.ttl":      auth.DefaultResetTTL,
		"reset.base_url": "http://localhost:3000/reset-password",

		"throttle.gc_interval": throttle.DefaultGCInterval,

		"sweeper.interval":          sweeper.Interval,
		"sweeper.refresh_grace":     sweeper.RefreshGrace,
		"sweeper.attempt_retention": sweeper.AttemptRetention,
		"sweeper.event_retention":   sweeper.EventRetention,

		"mail.rate_per_minute": mailCfg.PerMinute,
		"mail.per_recipient":   mailCfg.PerRecipient,

		"log.format": "json",
		"log.level":  "info",

		"metrics.addr": "127.0.0.1:9100",
	}
	for key, s := range map[string]throttle.Strategy{
		"login":           throttle.Login,
		"register":        throttle.Register,
		"refresh":         throttle.Refresh,
		"password_change": throttle.PasswordChange,
		"password_reset":  throttle.PasswordReset,
	} {
		d["throttle."+key+".window"] = s.Window
		d["throttle."+key+".max_requests"] = s.MaxRequests
	}
	return d
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", false, "apply pending schema migrations on start")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
}

// Load builds a Config from the layered sources. path may be empty. flags
// may be nil; only flags the user set override earlier layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	defaults := Defaults()

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	envKeys := make(map[string]string, len(defaults))
	for key := range defaults {
		envKeys[EnvPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(name string) string {
		return envKeys[name]
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// Exists reports whether path names a readable file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
