// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
	"github.com/zaakcentrum/zac/internal/authz/decision"
)

type checkOptions struct {
	subject      string
	superuser    bool
	permission   string
	objectType   string
	reference    string
	catalogus    string
	omschrijving string
	va           string
	roleHolders  []string
	filter       bool
	prefix       string
	effective    bool
}

// NewCheckCmd creates the check subcommand.
func NewCheckCmd(deps *Deps) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a permission check against the stored grants",
		Long: `Evaluate whether a subject holds a permission, using the grants stored
in the database and object attributes given on the command line.

Without --reference the check asks whether the subject holds the permission
on any object. With --reference and --catalogus the object attributes are
taken from the flags. --role-holder lists the subjects holding the
behandelaar or initiator role on the case.

  zac check --subject alice --permission zaken:inzien --reference https://zaken/1 \
    --catalogus https://catalogi/1 --omschrijving Melding --va intern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts, deps)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.subject, "subject", "", "subject to evaluate")
	f.BoolVar(&opts.superuser, "superuser", false, "evaluate as a superuser")
	f.StringVar(&opts.permission, "permission", "", "permission name")
	f.StringVar(&opts.objectType, "type", string(authz.ObjectTypeCase), "object type (case or document)")
	f.StringVar(&opts.reference, "reference", "", "object reference (URL)")
	f.StringVar(&opts.catalogus, "catalogus", "", "catalogue of the object's type")
	f.StringVar(&opts.omschrijving, "omschrijving", "", "description of the object's type")
	f.StringVar(&opts.va, "va", string(confidentiality.Openbaar), "confidentiality level of the object")
	f.StringSliceVar(&opts.roleHolders, "role-holder", nil, "subject holding the behandelaar or initiator role (repeatable)")
	f.BoolVar(&opts.filter, "filter", false, "print the compiled search filter instead of a decision")
	f.StringVar(&opts.prefix, "prefix", "", "field prefix for --filter")
	f.BoolVar(&opts.effective, "effective", false, "print the subject's effective permissions")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// staticRoleHolders answers role lookups from the command line.
type staticRoleHolders []string

func (s staticRoleHolders) ActiveRoleHolders(context.Context, string, authz.RoleKind) ([]string, error) {
	return s, nil
}

func (o *checkOptions) object() (authz.Object, error) {
	ot, err := authz.ParseObjectType(o.objectType)
	if err != nil {
		return authz.Object{}, err
	}
	level, err := confidentiality.Parse(o.va)
	if err != nil {
		return authz.Object{}, err
	}
	return authz.Object{
		Type:            ot,
		Reference:       o.reference,
		Domain:          o.catalogus,
		TypeDescription: o.omschrijving,
		Confidentiality: level,
	}, nil
}

func runCheck(cmd *cobra.Command, opts *checkOptions, deps *Deps) error {
	if !opts.effective && opts.permission == "" {
		return oops.Code("CHECK_INVALID").With("flag", "permission").Errorf("--permission is required")
	}
	obj, err := opts.object()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	logger, err := setupLogging(cfg, cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := deps.withDefaults().PoolFactory(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	var collab collaborators
	if len(opts.roleHolders) > 0 {
		collab.roleHolders = staticRoleHolders(opts.roleHolders)
	}
	svcs, err := newServices(cfg, pool, collab, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svcs.close(context.Background()) }()

	subject := authz.Subject{ID: opts.subject, Superuser: opts.superuser}
	switch {
	case opts.effective:
		perms, err := svcs.engine.EffectivePermissions(ctx, subject)
		if err != nil {
			return err
		}
		for _, p := range perms {
			cmd.Println(p)
		}
		return nil
	case opts.filter:
		f, err := svcs.engine.SearchFilter(ctx, subject, opts.permission, obj.Type, opts.prefix)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(f.Query(), "", "  ")
		if err != nil {
			return oops.Wrap(err)
		}
		cmd.Println(string(out))
		return nil
	}

	var d decision.Decision
	switch {
	case opts.reference == "":
		d, err = svcs.engine.Evaluate(ctx, subject, opts.permission, nil)
	case opts.catalogus != "":
		d, err = svcs.engine.CheckObject(ctx, subject, opts.permission, obj)
	default:
		target := obj.Target()
		d, err = svcs.engine.Evaluate(ctx, subject, opts.permission, &target)
	}
	printDecision(cmd, d)
	return err
}

func printDecision(cmd *cobra.Command, d decision.Decision) {
	verdict := "DENY"
	if d.IsAllowed() {
		verdict = "ALLOW"
	}
	parts := []string{verdict, "effect=" + d.Effect.String()}
	if d.Reason != "" {
		parts = append(parts, "reason="+d.Reason)
	}
	if d.GrantID != "" {
		parts = append(parts, "grant="+d.GrantID)
	}
	cmd.Println(strings.Join(parts, " "))
}
