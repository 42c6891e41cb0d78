// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package errutil bridges oops errors to slog and to test assertions.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Attrs returns slog attributes for err: the message and, for oops errors,
// the code and merged context of the chain.
func Attrs(err error) []any {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return attrs
	}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its oops code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	Log(context.Background(), logger, slog.LevelError, msg, err)
}

// Log logs err at level with its oops code and context plus any extra
// key/value pairs.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, level, msg, append(args, Attrs(err)...)...)
}
