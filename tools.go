// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools
// +build tools

// Package main pins test dependencies used only behind build tags so they
// stay in go.mod.
package main

import (
	// Integration suite (build tag: integration)
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"

	// Unit tests
	_ "github.com/stretchr/testify/assert"
	_ "github.com/stretchr/testify/require"
)
