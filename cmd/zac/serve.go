// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zaakcentrum/zac/internal/config"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

// healthService is the gRPC health service name reporting database reachability.
const healthService = "zac.authz"

const (
	healthInterval  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization service",
		Long: `Run the authorization service: connect to PostgreSQL, optionally apply
pending migrations, start the notification dispatcher and expose metrics,
HTTP health probes and the gRPC health service until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}
}

// runServeWithDeps runs the service until ctx ends, a signal arrives or a
// server fails.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()

	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	logger, err := setupLogging(cfg, cmd)
	if err != nil {
		return err
	}
	logger.Info("starting zac",
		"version", version,
		"metrics_addr", cfg.Metrics.Addr,
		"grpc_addr", cfg.GRPC.Addr,
		"auto_migrate", cfg.Migrate.Auto,
	)

	if cfg.Migrate.Auto {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	svcs, err := newServices(cfg, pool, collaborators{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if err := svcs.close(closeCtx); err != nil {
			errutil.LogError(logger, "notification queue not drained", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hs := health.NewServer()
	refresh := func(ctx context.Context) {
		refreshHealth(ctx, pool, svcs, hs, logger)
	}
	refresh(ctx)

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, pool.Ping)
		obsServer.SetBuildInfo(version, commit)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	var grpcServer *grpc.Server
	grpcErrCh := make(chan error, 1)
	if cfg.GRPC.Addr != "" {
		listener, err := deps.ListenerFactory("tcp", cfg.GRPC.Addr)
		if err != nil {
			stopObservability(obsServer, logger)
			return oops.Code("GRPC_LISTEN_FAILED").With("addr", cfg.GRPC.Addr).Wrap(err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, hs)
		go func() {
			if serveErr := grpcServer.Serve(listener); serveErr != nil {
				grpcErrCh <- serveErr
			}
		}()
		logger.Info("gRPC health server listening", "addr", listener.Addr().String())
	}

	go func() {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh(ctx)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("zac started")

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-grpcErrCh:
		runErr = oops.Code("GRPC_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	hs.Shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	stopObservability(obsServer, logger)
	logger.Info("shutdown complete")
	return runErr
}

// refreshHealth pings the database, publishes the result on the gRPC health
// service and refreshes the pending request gauge.
func refreshHealth(ctx context.Context, pool Pool, svcs *services, hs *health.Server, logger *slog.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := pool.Ping(pingCtx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		logger.WarnContext(ctx, "database unreachable", "error", err)
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(healthService, status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return
	}

	if n, err := svcs.workflow.RefreshPending(ctx); err != nil {
		errutil.Log(ctx, logger, slog.LevelWarn, "pending access requests not counted", err)
	} else {
		logger.DebugContext(ctx, "pending access requests", "count", n)
	}
}

func stopObservability(s ObservabilityServer, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// runAutoMigration applies pending migrations before the pool opens.
func runAutoMigration(url string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	m, err := factory(url)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error. It
// returns when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		logger.Error("server error, triggering shutdown", "server", name, "error", err)
		cancel()
	case <-ctx.Done():
	}
}
