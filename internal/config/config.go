// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package config loads service configuration from an optional YAML file
// and command-line flags. Flags that were set explicitly win over the file.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/zaakcentrum/zac/internal/authz/notify"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// CodeInvalid is the error code of every validation failure.
const CodeInvalid = "CONFIG_INVALID"

// Config is the complete service configuration.
type Config struct {
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Metrics  Metrics  `koanf:"metrics"`
	GRPC     GRPC     `koanf:"grpc"`
	Notify   Notify   `koanf:"notify"`
	Engine   Engine   `koanf:"engine"`
	Migrate  Migrate  `koanf:"migrate"`
}

// Database configures the PostgreSQL pool.
type Database struct {
	// URL falls back to the DATABASE_URL environment variable.
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// Log configures the process logger.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Metrics configures the metrics and health HTTP endpoint. An empty
// address disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// GRPC configures the gRPC health endpoint. An empty address disables it.
type GRPC struct {
	Addr string `koanf:"addr"`
}

// Notify configures the asynchronous notification dispatcher.
type Notify struct {
	QueueSize int           `koanf:"queue_size"`
	Timeout   time.Duration `koanf:"timeout"`
}

// Engine configures the authorization engine and access request workflow.
type Engine struct {
	ViewPermission string `koanf:"view_permission"`
}

// Migrate configures schema migration at startup.
type Migrate struct {
	Auto bool `koanf:"auto"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Database: Database{MaxConns: 10},
		Log:      Log{Format: "json", Level: "info"},
		Metrics:  Metrics{Addr: "127.0.0.1:9100"},
		GRPC:     GRPC{Addr: "127.0.0.1:9000"},
		Notify:   Notify{QueueSize: notify.DefaultQueueSize, Timeout: notify.DefaultTimeout},
		Engine:   Engine{ViewPermission: permission.CaseView},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url":       "database.url",
	"database-max-conns": "database.max_conns",
	"log-format":         "log.format",
	"log-level":          "log.level",
	"metrics-addr":       "metrics.addr",
	"grpc-addr":          "grpc.addr",
	"notify-queue-size":  "notify.queue_size",
	"notify-timeout":     "notify.timeout",
	"view-permission":    "engine.view_permission",
	"auto-migrate":       "migrate.auto",
}

// RegisterFlags adds the flags Load understands to fs, with the defaults
// of Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	fs.Int32("database-max-conns", d.Database.MaxConns, "maximum pool connections")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("grpc-addr", d.GRPC.Addr, "gRPC health address (empty = disabled)")
	fs.Int("notify-queue-size", d.Notify.QueueSize, "notification queue capacity")
	fs.Duration("notify-timeout", d.Notify.Timeout, "timeout of a single notification delivery")
	fs.String("view-permission", d.Engine.ViewPermission, "permission granted by approved access requests")
	fs.Bool("auto-migrate", d.Migrate.Auto, "apply pending migrations at startup")
}

// Load reads path (when non-empty) and then the explicitly set flags of fs
// (when non-nil) over Default, and validates the result.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalid).With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "decode configuration").Wrap(err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
