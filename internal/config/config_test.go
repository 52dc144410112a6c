// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/throttle"
	"github.com/holomush/authcore/pkg/errutil"
)

const (
	accessSecret  = "access-secret-access-secret-0123456789"
	refreshSecret = "refresh-secret-refresh-secret-0123456789"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("AUTHCORE_DATABASE_URL", "postgres://authcore@localhost/authcore")
	t.Setenv("AUTHCORE_TOKENS_ACCESS_SECRET", accessSecret)
	t.Setenv("AUTHCORE_TOKENS_REFRESH_SECRET", refreshSecret)
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	return cfg
}

func violations(t *testing.T, err error) []string {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	v, ok := oopsErr.Context()["violations"].([]string)
	require.True(t, ok, "violations should be a []string")
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, "authcore", cfg.Tokens.Issuer)
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.Duration)
	assert.Equal(t, time.Hour, cfg.Reset.TTL)
	assert.Equal(t, throttle.Login.Window, cfg.Throttle.Login.Window)
	assert.Equal(t, 3, cfg.Throttle.Register.MaxRequests)
	assert.Equal(t, 10, cfg.Throttle.PasswordReset.MaxRequests)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
}

func TestLoad_Layering(t *testing.T) {
	path := writeFile(t, `
database:
  url: postgres://file@db/authcore
tokens:
  access_ttl: 5m
  issuer: file-issuer
throttle:
  login:
    max_requests: 7
log:
  format: text
`)
	t.Setenv("AUTHCORE_TOKENS_ISSUER", "env-issuer")
	t.Setenv("AUTHCORE_THROTTLE_PASSWORD_CHANGE_MAX_REQUESTS", "9")
	t.Setenv("AUTHCORE_DATABASE_AUTO_MIGRATE", "true")
	t.Setenv("AUTHCORE_UNKNOWN_KEY", "ignored")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--database-url", "postgres://flag@db/authcore"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "postgres://flag@db/authcore", cfg.Database.URL, "flag beats file")
	assert.Equal(t, 5*time.Minute, cfg.Tokens.AccessTTL, "file beats defaults")
	assert.Equal(t, "env-issuer", cfg.Tokens.Issuer, "env beats file")
	assert.Equal(t, 7, cfg.Throttle.Login.MaxRequests)
	assert.Equal(t, throttle.Login.Window, cfg.Throttle.Login.Window, "sibling keys keep defaults")
	assert.Equal(t, 9, cfg.Throttle.PasswordChange.MaxRequests)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "text", cfg.Log.Format, "unset flags do not override the file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	errutil.AssertErrorContext(t, err, "source", "file")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, "lockout:\n  duration: forever\n")
	_, err := config.Load(path, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_DECODE_FAILED")
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateDatabase())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Lockout.Threshold = 0
	cfg.Throttle.Refresh.Window = 0
	cfg.Log.Format = "xml"

	err = cfg.Validate()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	v := violations(t, err)
	joined := strings.Join(v, "\n")
	assert.Contains(t, joined, "database.url is required")
	assert.Contains(t, joined, "tokens.access_secret must be at least 32 bytes")
	assert.Contains(t, joined, "tokens.refresh_secret must be at least 32 bytes")
	assert.Contains(t, joined, "lockout.threshold must be at least 1")
	assert.Contains(t, joined, "throttle.refresh.window must be positive")
	assert.Contains(t, joined, `log.format must be 'json' or 'text', got "xml"`)
}

func TestValidate_Secrets(t *testing.T) {
	t.Run("must differ", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Tokens.RefreshSecret = cfg.Tokens.AccessSecret
		assert.Contains(t, violations(t, cfg.Validate()), "tokens.access_secret and tokens.refresh_secret must differ")
	})

	t.Run("access shorter than refresh", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Tokens.AccessTTL = cfg.Tokens.RefreshTTL
		assert.Contains(t, violations(t, cfg.Validate()), "tokens.access_ttl must be shorter than tokens.refresh_ttl")
	})
}

func TestValidateDatabase(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	errutil.AssertErrorCode(t, cfg.ValidateDatabase(), "CONFIG_INVALID")
}

func TestBindings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Throttle.Login = config.StrategyConfig{Window: time.Minute, MaxRequests: 2}
	cfg.Mail.RatePerMinute = 12

	codec := cfg.CodecConfig()
	assert.Equal(t, []byte(accessSecret), codec.AccessSecret)
	assert.Equal(t, []byte(refreshSecret), codec.RefreshSecret)

	authCfg := cfg.AuthConfig()
	assert.Equal(t, throttle.Strategy{Name: "login", Window: time.Minute, MaxRequests: 2}, authCfg.Strategies.Login)
	assert.Equal(t, throttle.Register, authCfg.Strategies.Register)
	assert.Equal(t, 5, authCfg.Lockout.Threshold)
	assert.Equal(t, time.Hour, authCfg.ResetTTL)

	assert.Equal(t, 12, cfg.MailThrottle().PerMinute)
	assert.Equal(t, time.Hour, cfg.SweeperConfig().Interval)
	assert.Equal(t, time.Minute, cfg.GateConfig().GCInterval)
}

func TestExists(t *testing.T) {
	path := writeFile(t, "log:\n  level: debug\n")
	assert.True(t, config.Exists(path))
	assert.False(t, config.Exists(filepath.Dir(path)))
	assert.False(t, config.Exists(path+".missing"))
}
