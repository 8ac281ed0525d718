// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package deploy orchestrates a full deployment: for each configured table
// it provisions the table and its attributes, reconciles the declared
// values against the service, and journals the outcome.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iamankitjain/aj-amazon-connect-datatables/config"
	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
	"github.com/iamankitjain/aj-amazon-connect-datatables/journal"
)

// Table deployment statuses.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Service is the remote surface the deployer needs. *dtapi.Client
// implements it.
type Service interface {
	datatable.RemoteAPI
	datatable.TokenFetcher

	EnsureTable(ctx context.Context, spec datatable.TableSpec) (datatable.TableHandle, error)
	EnsureAttributes(ctx context.Context, table datatable.TableHandle, attrs []datatable.AttributeSpec) error
	FindTable(ctx context.Context, name string) (*dtapi.TableResponse, error)
	ListAttributes(ctx context.Context, tableID string) ([]dtapi.AttributeResponse, error)
	ListValues(ctx context.Context, tableID string, limit int) ([]dtapi.RowWire, error)
	DeleteTable(ctx context.Context, tableID string) error
}

// TableResult is the outcome of deploying one configured table.
type TableResult struct {
	Name    string
	Status  string
	Message string
	Summary *datatable.Summary
}

// Result is the outcome of a full deployment run.
type Result struct {
	RunID  string
	Tables []TableResult
}

// Deployer runs deployments against one service instance.
type Deployer struct {
	service   Service
	cfg       *config.DeployConfig
	configDir string
	journal   *journal.Journal
	logger    *slog.Logger
}

// NewDeployer creates a deployer. journal may be nil to skip journaling.
func NewDeployer(service Service, cfg *config.DeployConfig, configDir string, j *journal.Journal, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		service:   service,
		cfg:       cfg,
		configDir: configDir,
		journal:   j,
		logger:    logger,
	}
}

// Run deploys every configured table. Per-table failures do not stop the
// run; each table reports its own status.
func (d *Deployer) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now()
	result := &Result{}

	for _, tableCfg := range d.cfg.DataTables {
		result.Tables = append(result.Tables, d.deployTable(ctx, tableCfg))
	}

	if d.journal != nil {
		run := &journal.Run{
			InstanceID: d.cfg.InstanceID,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
		}
		for _, table := range result.Tables {
			record := journal.TableRecord{
				Name:   table.Name,
				Status: table.Status,
				Error:  table.Message,
			}
			if table.Summary != nil {
				record.Updated = table.Summary.Updated
				record.Created = table.Summary.Created
				record.Failed = table.Summary.Failed
			}
			run.Tables = append(run.Tables, record)
		}
		if err := d.journal.RecordRun(ctx, run); err != nil {
			return result, fmt.Errorf("record deployment run: %w", err)
		}
		result.RunID = run.ID
	}

	return result, nil
}

func (d *Deployer) deployTable(ctx context.Context, tableCfg config.TableConfig) TableResult {
	logger := d.logger.With("table", tableCfg.Name)

	attrs, err := config.LoadAttributes(d.configDir, tableCfg.Name)
	if err != nil {
		return TableResult{Name: tableCfg.Name, Status: StatusFailed, Message: err.Error()}
	}
	if attrs == nil {
		logger.Info("No attributes configuration found, skipping table")
		return TableResult{Name: tableCfg.Name, Status: StatusSkipped, Message: "no attributes configuration found"}
	}

	handle, err := d.service.EnsureTable(ctx, tableCfg.TableSpec())
	if err != nil {
		logger.Error("Failed to ensure table", "error", err)
		return TableResult{Name: tableCfg.Name, Status: StatusFailed, Message: err.Error()}
	}

	if err := d.service.EnsureAttributes(ctx, handle, attrs); err != nil {
		logger.Error("Failed to ensure attributes", "error", err)
		return TableResult{Name: tableCfg.Name, Status: StatusFailed, Message: err.Error()}
	}
	handle.PrimaryOrder = config.PrimaryOrder(attrs)

	rows, err := config.LoadValues(d.configDir, tableCfg.Name, attrs)
	if err != nil {
		return TableResult{Name: tableCfg.Name, Status: StatusFailed, Message: err.Error()}
	}
	if rows == nil {
		logger.Info("No values configuration found, nothing to reconcile")
		return TableResult{Name: tableCfg.Name, Status: StatusCompleted, Summary: &datatable.Summary{}}
	}

	reconciler := datatable.NewReconciler(d.service, d.service, d.cfg.ReconcilerConfig(), logger)
	summary, err := reconciler.Reconcile(ctx, handle, rows)
	if err != nil {
		logger.Error("Reconciliation failed", "error", err)
		result := TableResult{Name: tableCfg.Name, Status: StatusFailed, Message: err.Error(), Summary: summary}
		return result
	}

	logger.Info("Table deployed",
		"updated", summary.Updated,
		"created", summary.Created,
		"failed", summary.Failed)
	return TableResult{Name: tableCfg.Name, Status: StatusCompleted, Summary: summary}
}

// TableReport describes one remote table for verification output.
type TableReport struct {
	Name       string
	ID         string
	LockLevel  string
	Attributes []dtapi.AttributeResponse
	PrimaryKey []string
	Rows       []dtapi.RowWire
}

// Verify queries the service for every table it hosts and returns what is
// actually stored, including a sample of rows per table.
func (d *Deployer) Verify(ctx context.Context, sampleSize int) ([]TableReport, error) {
	if sampleSize <= 0 {
		sampleSize = 5
	}

	var reports []TableReport
	for _, tableCfg := range d.cfg.DataTables {
		table, err := d.service.FindTable(ctx, tableCfg.Name)
		if err != nil {
			return nil, fmt.Errorf("find table %q: %w", tableCfg.Name, err)
		}
		if table == nil {
			reports = append(reports, TableReport{Name: tableCfg.Name})
			continue
		}

		attrs, err := d.service.ListAttributes(ctx, table.ID)
		if err != nil {
			return nil, fmt.Errorf("list attributes for %q: %w", tableCfg.Name, err)
		}
		var primaryKey []string
		for _, attr := range attrs {
			if attr.Primary {
				primaryKey = append(primaryKey, attr.Name)
			}
		}

		rows, err := d.service.ListValues(ctx, table.ID, sampleSize)
		if err != nil {
			return nil, fmt.Errorf("list values for %q: %w", tableCfg.Name, err)
		}

		reports = append(reports, TableReport{
			Name:       table.Name,
			ID:         table.ID,
			LockLevel:  table.ValueLockLevel,
			Attributes: attrs,
			PrimaryKey: primaryKey,
			Rows:       rows,
		})
	}
	return reports, nil
}

// Cleanup deletes every configured table from the service. Tables that do
// not exist are reported as skipped.
func (d *Deployer) Cleanup(ctx context.Context) ([]TableResult, error) {
	var results []TableResult
	for _, tableCfg := range d.cfg.DataTables {
		table, err := d.service.FindTable(ctx, tableCfg.Name)
		if err != nil {
			return results, fmt.Errorf("find table %q: %w", tableCfg.Name, err)
		}
		if table == nil {
			results = append(results, TableResult{Name: tableCfg.Name, Status: StatusSkipped, Message: "table does not exist"})
			continue
		}

		if err := d.service.DeleteTable(ctx, table.ID); err != nil {
			d.logger.Error("Failed to delete table", "table", tableCfg.Name, "error", err)
			results = append(results, TableResult{Name: tableCfg.Name, Status: StatusFailed, Message: err.Error()})
			continue
		}
		d.logger.Info("Deleted data table", "table", tableCfg.Name, "id", table.ID)
		results = append(results, TableResult{Name: tableCfg.Name, Status: StatusCompleted})
	}
	return results, nil
}
