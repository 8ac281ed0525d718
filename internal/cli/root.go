// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the deployment and server commands.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iamankitjain/aj-amazon-connect-datatables/config"
	"github.com/iamankitjain/aj-amazon-connect-datatables/deploy"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
	"github.com/iamankitjain/aj-amazon-connect-datatables/journal"
)

// TokenEnvVar is consulted when --token is not given.
const TokenEnvVar = "DATATABLES_TOKEN"

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigDir string
	ServerURL string
	Token     string
	Verbose   bool
}

// NewRootCommand creates the root command for the data-tables CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "datatables",
		Short: "Declarative deployment for managed data tables",
		Long: `Deploy declared data tables, attribute schemas and values to a
data-table service, reconciling the declared rows against what the
service already holds.`,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "config", "directory holding data_tables_config.json and per-table files")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server-url", "", "service base URL (overrides serverUrl from the configuration)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token for the service (defaults to $"+TokenEnvVar+")")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newDeployer loads the configuration and builds a deployer plus its
// journal. The returned close function releases the journal.
func newDeployer(opts *RootOptions, logger *slog.Logger) (*deploy.Deployer, func(), error) {
	cfg, err := config.LoadDeployConfig(opts.ConfigDir)
	if err != nil {
		return nil, nil, err
	}

	serverURL := opts.ServerURL
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}

	token := opts.Token
	if token == "" {
		token = os.Getenv(TokenEnvVar)
	}
	var tokenFunc dtapi.TokenFunc
	if token != "" {
		tokenFunc = func(context.Context) (string, error) { return token, nil }
	}

	client := dtapi.NewClient(serverURL, tokenFunc, logger)

	var j *journal.Journal
	closeFn := func() {}
	if cfg.JournalPath != "" {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("Failed to close journal", "error", closeErr)
			}
		}
	}

	return deploy.NewDeployer(client, cfg, opts.ConfigDir, j, logger), closeFn, nil
}

func statusIcon(status string) string {
	switch status {
	case deploy.StatusCompleted:
		return "[OK]"
	case deploy.StatusSkipped:
		return "[SKIP]"
	default:
		return "[FAIL]"
	}
}
