// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// NewPermissionsCmd creates the permissions subcommand.
func NewPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions [PATTERN]",
		Short: "List registered permissions",
		Long: `List the registered permissions, optionally narrowed by a glob pattern
with ':' as the segment separator, e.g. "zaken:*".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := permission.DefaultRegistry()
			names := reg.Names()
			if len(args) == 1 {
				var err error
				if names, err = reg.Match(args[0]); err != nil {
					return err
				}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, n := range names {
				p, _ := reg.Lookup(n)
				flag := ""
				if p.RequiresCaseAssignment {
					flag = "case role"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.ObjectType, p.Description, flag)
			}
			return w.Flush()
		},
	}
}
