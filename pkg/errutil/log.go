// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for oops-coded errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops error code carried by err, or "" when err has none.
func Code(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// LogError logs an error with structured context if it's an oops error.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	LogErrorContext(context.Background(), logger, msg, err, attrs...)
}

// LogErrorContext is LogError with a context so request and trace
// attributes reach the handler.
//
// For oops errors the message, code and context map are logged as separate
// attributes; other errors are logged as their string.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, append(attrs, "error", err)...)
		return
	}

	attrs = append(attrs, "error", oopsErr.Error())
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		attrs = append(attrs, "context", errCtx)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
