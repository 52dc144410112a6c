// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/credential"
)

func TestIsExpected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"internal code", oops.Code("LOGIN_FAILED").Errorf("x"), false},
		{"invalid credentials", oops.Code(auth.CodeInvalidCredentials).Errorf("x"), true},
		{"rate limited", oops.Code(auth.CodeRateLimited).Errorf("x"), true},
		{"reset invalid", oops.Code(auth.CodeResetTokenInvalid).Errorf("x"), true},
		{"forbidden", oops.Code(auth.CodeForbidden).Errorf("x"), true},
		{"wrapped expected", oops.With("k", "v").Wrap(oops.Code(auth.CodeConflict).Errorf("x")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.IsExpected(tt.err))
		})
	}
}

func TestCodeTokenInvalidMatchesCodec(t *testing.T) {
	assert.Equal(t, credential.CodeInvalid, auth.CodeTokenInvalid)
}

func TestPublicError(t *testing.T) {
	assert.NoError(t, auth.PublicError(nil))

	expected := oops.Code(auth.CodeAccountLocked).Errorf("locked")
	assert.Equal(t, expected, auth.PublicError(expected))

	internal := oops.Code("REFRESH_LOOKUP_FAILED").Wrap(errors.New("password=hunter2 host=db"))
	public := auth.PublicError(internal)
	assert.Equal(t, auth.CodeInternal, auth.Code(public))
	assert.NotContains(t, public.Error(), "hunter2")
	assert.False(t, auth.IsExpected(public))
}
