// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package config

import (
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code(CodeInvalid).With("key", key).With("value", value).Errorf(format, args...)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", c.Log.Format, "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level", c.Log.Level, "log.level %q is not a level", c.Log.Level)
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", c.Database.MaxConns, "database.max_conns cannot be negative")
	}
	if c.Notify.QueueSize <= 0 {
		return invalid("notify.queue_size", c.Notify.QueueSize, "notify.queue_size must be positive")
	}
	if c.Notify.Timeout <= 0 {
		return invalid("notify.timeout", c.Notify.Timeout.String(), "notify.timeout must be positive")
	}
	if _, ok := permission.DefaultRegistry().Lookup(c.Engine.ViewPermission); !ok {
		return invalid("engine.view_permission", c.Engine.ViewPermission,
			"engine.view_permission %q is not a registered permission", c.Engine.ViewPermission)
	}
	return nil
}

// RequireDatabase fails when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code(CodeInvalid).With("key", "database.url").
			Errorf("database.url, --database-url or DATABASE_URL is required")
	}
	return nil
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.ToUpper(l.Level)))
	return level, err
}
