// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Password policy limits.
const (
	MinPasswordLength = 8
	// MaxPasswordLength bounds hashing cost for hostile input.
	MaxPasswordLength = 256
)

// Display name limits.
const MaxDisplayNameLength = 100

const passwordSpecials = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"

// PasswordViolations lists every password policy rule the password breaks.
// An empty result means the password is acceptable.
func PasswordViolations(password string) []string {
	var violations []string
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		violations = append(violations, "password must be at least 8 characters")
	}
	if n > MaxPasswordLength {
		violations = append(violations, "password must be at most 256 characters")
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower {
		violations = append(violations, "password must contain at least one lowercase letter")
	}
	if !upper {
		violations = append(violations, "password must contain at least one uppercase letter")
	}
	if !digit {
		violations = append(violations, "password must contain at least one digit")
	}
	if !special {
		violations = append(violations, "password must contain at least one special character")
	}
	return violations
}

// ValidatePassword returns a VALIDATION_FAILED error listing violations.
func ValidatePassword(password string) error {
	if v := PasswordViolations(password); len(v) > 0 {
		return errValidation(v...)
	}
	return nil
}

// EmailViolation returns a description of what is wrong with email, or "".
// Display-name forms such as "Ada <ada@example.com>" are rejected.
func EmailViolation(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "email is required"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "email is not a valid address"
	}
	if len(email) > 254 {
		return "email must be at most 254 characters"
	}
	return ""
}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION|ALTER|CREATE|EXEC)\b`),
	regexp.MustCompile(`'.*--`),
	regexp.MustCompile(`(?i);.*\b(DROP|DELETE|UPDATE|INSERT)\b`),
	regexp.MustCompile(`(?i)\b(OR|AND)\b\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i)<\s*script\b|javascript:`),
}

// LooksSuspicious reports whether s resembles an injection attempt. Queries
// are parameterized; this only feeds the audit trail.
func LooksSuspicious(s string) bool {
	for _, p := range suspiciousPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
