// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the credential and session lifecycle.
//
// # Components
//
//   - LockoutTracker - per-principal failed-login counter and timed lock
//   - RefreshLedger - refresh token families, rotation and reuse detection
//   - ResetVault - single-use password reset tokens
//   - Orchestrator - the register, login, refresh, change-password,
//     forgot/reset-password and logout flows
//   - Sweeper - background purge of expired rows
//
// Persistence is behind the repository interfaces in this package;
// internal/auth/postgres implements them with pgx and authtest provides
// in-memory versions for tests.
//
// # Errors
//
// Flows return oops errors with the stable codes declared in errors.go.
// IsExpected separates caller-recoverable outcomes from internal failures;
// PublicError hides the latter.
package auth
