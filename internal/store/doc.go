// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the authcore database schema. Migrations are embedded
// in the binary and applied through golang-migrate's pgx/v5 driver.
package store
