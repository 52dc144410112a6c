// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/pkg/errutil"
)

var (
	accessSecret  = []byte("access-secret-0123456789abcdefghijkl")
	refreshSecret = []byte("refresh-secret-0123456789abcdefghijk")
	subject       = credential.Subject{ID: "01HZX3Q7C8Y4K2M5N6P7R8S9T0", Email: "ada@example.com", Role: "client"}
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newCodec(t *testing.T, clock *fakeClock) *credential.Codec {
	t.Helper()
	cfg := credential.Config{AccessSecret: accessSecret, RefreshSecret: refreshSecret}
	if clock != nil {
		cfg.Clock = clock.Now
	}
	codec, err := credential.New(cfg)
	require.NoError(t, err)
	return codec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  credential.Config
	}{
		{"missing access secret", credential.Config{RefreshSecret: refreshSecret}},
		{"missing refresh secret", credential.Config{AccessSecret: accessSecret}},
		{"short secret", credential.Config{AccessSecret: []byte("short"), RefreshSecret: refreshSecret}},
		{"identical secrets", credential.Config{AccessSecret: accessSecret, RefreshSecret: accessSecret}},
		{"negative ttl", credential.Config{AccessSecret: accessSecret, RefreshSecret: refreshSecret, AccessTTL: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credential.New(tt.cfg)
			errutil.AssertErrorCode(t, err, "CREDENTIAL_CONFIG_INVALID")
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	codec := newCodec(t, nil)
	assert.Equal(t, int64(900), codec.ExpiresIn())
	assert.Equal(t, credential.DefaultRefreshTTL, codec.RefreshTTL())
}

func TestIssueAccess_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, clock)

	token, exp, err := codec.IssueAccess(subject)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(15*time.Minute), exp)

	claims, err := codec.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, subject.ID, claims.Subject)
	assert.Equal(t, subject.Email, claims.Email)
	assert.Equal(t, subject.Role, claims.Role)
	assert.Equal(t, credential.TypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueAccess_FreshJTI(t *testing.T) {
	codec := newCodec(t, nil)

	first, _, err := codec.IssueAccess(subject)
	require.NoError(t, err)
	second, _, err := codec.IssueAccess(subject)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	c1, err := codec.VerifyAccess(first)
	require.NoError(t, err)
	c2, err := codec.VerifyAccess(second)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestIssueAccess_RejectsEmptySubject(t *testing.T) {
	codec := newCodec(t, nil)
	_, _, err := codec.IssueAccess(credential.Subject{})
	errutil.AssertErrorCode(t, err, "CREDENTIAL_ISSUE_FAILED")
}

func TestIssueRefresh_Family(t *testing.T) {
	codec := newCodec(t, nil)

	t.Run("mints a new family when none given", func(t *testing.T) {
		token, family, _, err := codec.IssueRefresh(subject, "")
		require.NoError(t, err)
		assert.NotEmpty(t, family)

		claims, err := codec.VerifyRefresh(token)
		require.NoError(t, err)
		assert.Equal(t, family, claims.FamilyID)
	})

	t.Run("continues the given family", func(t *testing.T) {
		_, family, _, err := codec.IssueRefresh(subject, "")
		require.NoError(t, err)
		token, next, _, err := codec.IssueRefresh(subject, family)
		require.NoError(t, err)
		assert.Equal(t, family, next)

		claims, err := codec.VerifyRefresh(token)
		require.NoError(t, err)
		assert.Equal(t, family, claims.FamilyID)
	})

	t.Run("same-second tokens differ", func(t *testing.T) {
		clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		frozen := newCodec(t, clock)
		a, fam, _, err := frozen.IssueRefresh(subject, "")
		require.NoError(t, err)
		b, _, _, err := frozen.IssueRefresh(subject, fam)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestVerify_Rejections(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, clock)

	access, _, err := codec.IssueAccess(subject)
	require.NoError(t, err)
	refresh, _, _, err := codec.IssueRefresh(subject, "")
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := codec.VerifyAccess("")
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := codec.VerifyAccess("not.a.jwt")
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(access, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := codec.VerifyAccess(parts[0] + "." + parts[1] + "." + string(sig))
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
	})

	t.Run("refresh presented as access", func(t *testing.T) {
		_, err := codec.VerifyAccess(refresh)
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
	})

	t.Run("access presented as refresh", func(t *testing.T) {
		_, err := codec.VerifyRefresh(access)
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := credential.New(credential.Config{
			AccessSecret:  []byte("another-access-secret-0123456789abcd"),
			RefreshSecret: refreshSecret,
			Clock:         clock.Now,
		})
		require.NoError(t, err)
		_, err = other.VerifyAccess(access)
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
		errutil.AssertErrorContext(t, err, "reason", "bad signature")
	})

	t.Run("unsigned token", func(t *testing.T) {
		claims := credential.AccessClaims{
			Type: credential.TypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   subject.ID,
				Issuer:    credential.DefaultIssuer,
				ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Minute)),
			},
		}
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = codec.VerifyAccess(none)
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		clock.Advance(16 * time.Minute)
		t.Cleanup(func() { clock.Advance(-16 * time.Minute) })
		_, err := codec.VerifyAccess(access)
		errutil.AssertErrorCode(t, err, credential.CodeInvalid)
		errutil.AssertErrorContext(t, err, "reason", "expired")

		_, err = codec.VerifyRefresh(refresh)
		require.NoError(t, err, "refresh tokens outlive access tokens")
	})
}
