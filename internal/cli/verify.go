// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	SampleSize int
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Show what the service actually stores for configured tables",
		Long: `Query the service for every configured table and print its attribute
schema, primary key and a sample of stored rows. Useful after a deploy to
confirm the declared data landed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.SampleSize, "sample", 5, "rows to show per table")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)
	deployer, closeFn, err := newDeployer(opts.RootOptions, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	reports, err := deployer.Verify(cmd.Context(), opts.SampleSize)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, report := range reports {
		if report.ID == "" {
			fmt.Fprintf(out, "[MISSING] %s\n\n", report.Name)
			continue
		}
		fmt.Fprintf(out, "[OK] %s (id %s, lock level %s)\n", report.Name, report.ID, report.LockLevel)
		fmt.Fprintf(out, "  primary key: %s\n", strings.Join(report.PrimaryKey, ", "))
		for _, attr := range report.Attributes {
			marker := ""
			if attr.Primary {
				marker = " *"
			}
			fmt.Fprintf(out, "  attribute %s (%s)%s\n", attr.Name, attr.ValueType, marker)
		}
		fmt.Fprintf(out, "  rows (%d shown):\n", len(report.Rows))
		for _, row := range report.Rows {
			var parts []string
			for _, pv := range row.PrimaryValues {
				parts = append(parts, pv.AttributeName+"="+pv.Value)
			}
			for _, fv := range row.Attributes {
				parts = append(parts, fv.AttributeName+"="+fv.Value)
			}
			fmt.Fprintf(out, "    %s\n", strings.Join(parts, " "))
		}
		fmt.Fprintln(out)
	}
	return nil
}
