// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/iamankitjain/aj-amazon-connect-datatables/config"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtserver"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen      string
	DatabaseURL string
	JWTSecret   string
	InstanceID  string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the data-table service",
		Long: `Run the HTTP data-table service backed by PostgreSQL. The service
hosts table definitions, attribute schemas and values, and enforces the
optimistic lock-version protocol on batch mutations.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":8080", "address to listen on")
	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "PostgreSQL connection string (defaults to $DATABASE_URL)")
	cmd.Flags().StringVar(&opts.JWTSecret, "jwt-secret", "", "HMAC secret for bearer tokens (defaults to $JWT_SECRET)")
	cmd.Flags().StringVar(&opts.InstanceID, "instance-id", "", "instance this service hosts (defaults to instanceId from the configuration)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)

	databaseURL := opts.DatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return errors.New("no database URL: pass --database-url or set DATABASE_URL")
	}

	jwtSecret := opts.JWTSecret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		return errors.New("no JWT secret: pass --jwt-secret or set JWT_SECRET")
	}

	instanceID := opts.InstanceID
	if instanceID == "" {
		cfg, err := config.LoadDeployConfig(opts.ConfigDir)
		if err != nil {
			return fmt.Errorf("no instance ID: pass --instance-id or provide a configuration: %w", err)
		}
		instanceID = cfg.InstanceID
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	service, err := dtserver.NewDataTableService(pool, &dtserver.ServiceConfig{
		InstanceID: instanceID,
		AppName:    "datatables-serve",
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}
	defer service.Close()

	handlers := dtserver.NewHTTPHandlers(service, logger)
	mux := http.NewServeMux()
	handlers.Register(mux)

	auth := dtserver.NewJWTAuth(jwtSecret)
	httpServer := &http.Server{
		Addr:         opts.Listen,
		Handler:      auth.Middleware(instanceID, mux),
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting data-table service", "addr", opts.Listen, "instance", instanceID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
