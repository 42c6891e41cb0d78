// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/accessrequest"
	"github.com/zaakcentrum/zac/internal/authz/decision"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/notify"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/internal/authz/postgres"
	"github.com/zaakcentrum/zac/internal/authz/profile"
	"github.com/zaakcentrum/zac/internal/config"
)

// services is the authorization service graph on one database.
type services struct {
	store      *postgres.Store
	grants     *grant.Service
	profiles   *profile.Aggregator
	engine     *decision.Engine
	workflow   *accessrequest.Workflow
	dispatcher *notify.Dispatcher
}

// collaborators are the outside systems the engine and workflow consult.
// Both may be nil; the engine then denies what it cannot decide.
type collaborators struct {
	objects     authz.ObjectResolver
	roleHolders authz.RoleAssignmentLookup
}

func newServices(cfg *config.Config, db postgres.DB, collab collaborators, logger *slog.Logger) (*services, error) {
	st := postgres.New(db)
	registry := permission.DefaultRegistry()

	grants := grant.NewService(grant.ServiceConfig{
		Grants:   st,
		Roles:    st,
		Registry: registry,
		Logger:   logger.With("component", "grants"),
	})
	profiles := profile.NewAggregator(profile.Config{
		Profiles:   st,
		Grants:     grants,
		Transactor: st,
		Logger:     logger.With("component", "profiles"),
	})
	engine := decision.NewEngine(decision.Config{
		Grants:      grants,
		Registry:    registry,
		Objects:     collab.objects,
		RoleHolders: collab.roleHolders,
		Logger:      logger.With("component", "engine"),
	})
	dispatcher := notify.NewDispatcher(notify.Config{
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
		Logger:    logger.With("component", "notify"),
	})
	workflow, err := accessrequest.NewWorkflow(accessrequest.Config{
		Requests:       st,
		Grants:         grants,
		Transactor:     st,
		Objects:        collab.objects,
		Authorizer:     engine,
		Notifier:       dispatcher,
		ViewPermission: cfg.Engine.ViewPermission,
		Logger:         logger.With("component", "access_requests"),
	})
	if err != nil {
		_ = dispatcher.Close(context.Background())
		return nil, err
	}
	return &services{
		store:      st,
		grants:     grants,
		profiles:   profiles,
		engine:     engine,
		workflow:   workflow,
		dispatcher: dispatcher,
	}, nil
}

// close drains queued notifications.
func (s *services) close(ctx context.Context) error {
	return s.dispatcher.Close(ctx)
}
