// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/deploy"
)

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy configured tables, attributes and values",
		Long: `Deploy every table declared in the configuration directory: the
table and its attribute schema are created if missing, then the declared
values are reconciled against the service row by row.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, cmd)
		},
	}
	return cmd
}

func runDeploy(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)
	deployer, closeFn, err := newDeployer(opts, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := deployer.Run(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, table := range result.Tables {
		fmt.Fprintf(out, "%s %s: %s\n", statusIcon(table.Status), table.Name, table.Status)
		if table.Summary != nil && table.Status == deploy.StatusCompleted {
			fmt.Fprintf(out, "  - updated: %d, created: %d, failed: %d\n",
				table.Summary.Updated, table.Summary.Created, table.Summary.Failed)
		}
		if table.Message != "" {
			fmt.Fprintf(out, "  - %s\n", table.Message)
		}
		if table.Summary != nil {
			for _, failure := range table.Summary.Failures {
				fmt.Fprintf(out, "  - row %q: %s\n", rowLabel(failure.Row), failure.Cause)
			}
		}
		if table.Status == deploy.StatusFailed || (table.Summary != nil && table.Summary.Failed > 0) {
			failed++
		}
	}
	if result.RunID != "" {
		fmt.Fprintf(out, "Recorded run %s\n", result.RunID)
	}

	if failed > 0 {
		return fmt.Errorf("deployment finished with %d failed table(s)", failed)
	}
	return nil
}

func rowLabel(row datatable.DesiredRow) string {
	parts := make([]string, 0, len(row.PrimaryValues))
	for _, pv := range row.PrimaryValues {
		parts = append(parts, pv.Value.String())
	}
	return strings.Join(parts, "/")
}
