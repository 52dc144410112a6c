// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// ResetTokenBytes is the entropy of a reset token (64 hex chars).
const ResetTokenBytes = 32

// HashToken returns the hex SHA-256 of a raw token. Only hashes are stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// generateResetToken returns a random hex token and its hash.
func generateResetToken() (token, hash string, err error) {
	b := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}
