// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package journal persists per-run deployment summaries in a local SQLite
// database so past deployments can be inspected with the history command.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// TableRecord is the journaled outcome of one table within a run.
type TableRecord struct {
	Name    string
	Status  string
	Error   string
	Updated int
	Created int
	Failed  int
}

// Run is one recorded deployment.
type Run struct {
	ID         string
	InstanceID string
	StartedAt  time.Time
	FinishedAt time.Time
	Tables     []TableRecord
}

// Journal is a SQLite-backed deployment log.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS deploy_run (
			id          TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			started_at  TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deploy_table (
			run_id     TEXT NOT NULL REFERENCES deploy_run(id) ON DELETE CASCADE,
			table_name TEXT NOT NULL,
			status     TEXT NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			updated    INTEGER NOT NULL DEFAULT 0,
			created    INTEGER NOT NULL DEFAULT 0,
			failed     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, table_name)
		)`,
		`CREATE INDEX IF NOT EXISTS deploy_run_started_idx ON deploy_run(started_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize journal schema: %w", err)
		}
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordRun persists a deployment run and its per-table outcomes. A run
// with no ID is assigned one.
func (j *Journal) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deploy_run (id, instance_id, started_at, finished_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.InstanceID, run.StartedAt.UTC(), run.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for _, table := range run.Tables {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deploy_table (run_id, table_name, status, error, updated, created, failed)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, table.Name, table.Status, table.Error, table.Updated, table.Created, table.Failed); err != nil {
			return fmt.Errorf("record table %q: %w", table.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal transaction: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first, with their table
// outcomes attached.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, instance_id, started_at, finished_at
		FROM deploy_run
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.InstanceID, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list runs: %w", rows.Err())
	}

	for i := range runs {
		tables, err := j.listRunTables(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Tables = tables
	}
	return runs, nil
}

func (j *Journal) listRunTables(ctx context.Context, runID string) ([]TableRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT table_name, status, error, updated, created, failed
		FROM deploy_table
		WHERE run_id = ?
		ORDER BY table_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run tables: %w", err)
	}
	defer rows.Close()

	var tables []TableRecord
	for rows.Next() {
		var table TableRecord
		if err := rows.Scan(&table.Name, &table.Status, &table.Error, &table.Updated, &table.Created, &table.Failed); err != nil {
			return nil, fmt.Errorf("scan run table: %w", err)
		}
		tables = append(tables, table)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list run tables: %w", rows.Err())
	}
	return tables, nil
}
