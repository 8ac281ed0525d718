// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamankitjain/aj-amazon-connect-datatables/config"
	"github.com/iamankitjain/aj-amazon-connect-datatables/deploy"
	"github.com/iamankitjain/aj-amazon-connect-datatables/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deployment runs",
		Long: `List past deployment runs from the local journal, most recent
first, with the per-table outcome of each run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := config.LoadDeployConfig(opts.ConfigDir)
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return errors.New("configuration declares no journalPath")
	}

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded runs.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(out, "%s  %s  (%s)\n",
			run.StartedAt.Local().Format(time.RFC3339), run.ID, run.InstanceID)
		for _, table := range run.Tables {
			fmt.Fprintf(out, "  %s %s: %s", statusIcon(table.Status), table.Name, table.Status)
			if table.Status != deploy.StatusSkipped {
				fmt.Fprintf(out, " (updated %d, created %d, failed %d)", table.Updated, table.Created, table.Failed)
			}
			fmt.Fprintln(out)
			if table.Error != "" {
				fmt.Fprintf(out, "    %s\n", table.Error)
			}
		}
	}
	return nil
}
