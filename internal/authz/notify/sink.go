// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/zaakcentrum/zac/internal/authz"
)

// LogSink delivers notifications as structured log records. It is the sink
// used when no mail or signalling channel is configured.
type LogSink struct {
	logger *slog.Logger
}

var _ authz.Notifier = (*LogSink)(nil)

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify implements authz.Notifier.
func (s *LogSink) Notify(ctx context.Context, n authz.Notification) error {
	attrs := []any{
		"subject", n.Subject,
		"object_type", string(n.ObjectType),
		"object_reference", n.ObjectReference,
		"outcome", string(n.Outcome),
	}
	if n.RequestID != "" {
		attrs = append(attrs, "request_id", n.RequestID)
	}
	if n.AssignmentID != "" {
		attrs = append(attrs, "assignment_id", n.AssignmentID)
	}
	if n.Handler != "" {
		attrs = append(attrs, "handler", n.Handler)
	}
	if n.ValidUntil != nil {
		attrs = append(attrs, "valid_until", n.ValidUntil.Format("2006-01-02"))
	}
	s.logger.InfoContext(ctx, "access notification", attrs...)
	return nil
}
