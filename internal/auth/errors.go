// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/pkg/errutil"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by PrincipalRepository.Create when the email
// is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateToken is returned when a token hash is already stored.
var ErrDuplicateToken = errors.New("token hash already exists")

// Stable error codes surfaced to callers.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeAccountDeactivated = "AUTH_ACCOUNT_DEACTIVATED"
	CodeTokenInvalid       = credential.CodeInvalid
	CodeTokenReuseDetected = "TOKEN_REUSE_DETECTED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeConflict           = "AUTH_CONFLICT"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL"
)

var expectedCodes = map[string]struct{}{
	CodeInvalidCredentials: {},
	CodeAccountLocked:      {},
	CodeAccountDeactivated: {},
	CodeTokenInvalid:       {},
	CodeTokenReuseDetected: {},
	CodeRateLimited:        {},
	CodeConflict:           {},
	CodeResetTokenInvalid:  {},
	CodeValidationFailed:   {},
	CodeForbidden:          {},
}

// Code returns the error code carried by err, or "" if there is none.
func Code(err error) string {
	return errutil.Code(err)
}

// IsExpected reports whether err is one of the caller-recoverable outcomes
// of a flow, as opposed to a storage or programming failure.
func IsExpected(err error) bool {
	_, ok := expectedCodes[Code(err)]
	return ok
}

// PublicError returns err unchanged when it is expected, and a generic
// INTERNAL error otherwise so storage details never reach callers.
func PublicError(err error) error {
	if err == nil || IsExpected(err) {
		return err
	}
	return oops.Code(CodeInternal).Errorf("internal error")
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func errTokenInvalid(reason string) error {
	return oops.Code(CodeTokenInvalid).With("reason", reason).Errorf("invalid token")
}

func errRateLimited(strategy string, retryAfter time.Duration) error {
	return oops.Code(CodeRateLimited).
		With("strategy", strategy).
		With("retry_after_ms", retryAfter.Milliseconds()).
		Errorf("too many requests, retry in %s", retryAfter)
}

func errValidation(violations ...string) error {
	return oops.Code(CodeValidationFailed).
		With("violations", violations).
		Errorf("validation failed")
}
