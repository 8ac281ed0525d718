// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package dtserver is the Postgres-backed data-table service. It stores
// table schemas, attribute definitions and row values, and enforces
// optimistic concurrency through per-scope lock versions.
package dtserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
)

// ServiceConfig holds configuration for the data-table service.
type ServiceConfig struct {
	InstanceID   string // Instance the hosted tables belong to (required)
	AppName      string // Application name for connection tracking
	MaxBatchSize int    // Maximum rows per batch mutation (0 = service default)
}

// DataTableService provides table provisioning, batch value mutation and
// lock-version bookkeeping on top of a Postgres pool.
type DataTableService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	config *ServiceConfig

	mu     sync.RWMutex
	closed bool
}

// NewDataTableService creates a service instance from an existing pool and
// initializes the storage schema.
func NewDataTableService(pool *pgxpool.Pool, config *ServiceConfig, logger *slog.Logger) (*DataTableService, error) {
	if config == nil {
		return nil, errors.New("service config is required")
	}
	if config.InstanceID == "" {
		return nil, errors.New("service config requires an instance ID")
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = datatable.MaxBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	service := &DataTableService{
		pool:   pool,
		logger: logger,
		config: config,
	}

	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return service.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data-table service: %w", err)
	}

	return service, nil
}

// Close marks the service as shut down. It does not close the pool; the
// caller owns the pool lifecycle.
func (s *DataTableService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.logger.Debug("Shutting down data-table service")
	s.closed = true
	return nil
}

// Pool returns the underlying connection pool for custom queries.
func (s *DataTableService) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *DataTableService) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New("data-table service has been closed")
	}
	return nil
}
