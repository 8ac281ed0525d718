// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamankitjain/aj-amazon-connect-datatables/deploy"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every configured table from the service",
		Long: `Delete all tables named in the configuration from the service.
Intended for test environments and full resets; this removes the tables
and every value they hold.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(rootOpts, cmd)
		},
	}
	return cmd
}

func runCleanup(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)
	deployer, closeFn, err := newDeployer(opts, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := deployer.Cleanup(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, result := range results {
		fmt.Fprintf(out, "%s %s: %s\n", statusIcon(result.Status), result.Name, result.Status)
		if result.Message != "" {
			fmt.Fprintf(out, "  - %s\n", result.Message)
		}
		if result.Status == deploy.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("cleanup finished with %d failed table(s)", failed)
	}
	return nil
}
