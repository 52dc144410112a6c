// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail provides auth.Mailer implementations. Delivery transports
// live outside authcore; LogMailer is the development sink and
// ThrottledMailer caps outbound reset mail in front of any transport.
package mail
