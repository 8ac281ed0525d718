// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package dtserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
)

// ErrBatchTooLarge is returned when a batch exceeds the service limit.
var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d rows", datatable.MaxBatchSize)

// BatchUpdate applies value mutations to existing rows. Rows that do not
// exist report not_found and are left untouched.
func (s *DataTableService) BatchUpdate(ctx context.Context, tableID string, req *dtapi.BatchValuesRequest) (*dtapi.BatchValuesResponse, error) {
	return s.batchApply(ctx, tableID, req, false)
}

// BatchCreate inserts new rows with their values. Rows that already exist
// report validation_error and are left untouched.
func (s *DataTableService) BatchCreate(ctx context.Context, tableID string, req *dtapi.BatchValuesRequest) (*dtapi.BatchValuesResponse, error) {
	return s.batchApply(ctx, tableID, req, true)
}

func (s *DataTableService) batchApply(ctx context.Context, tableID string, req *dtapi.BatchValuesRequest, create bool) (*dtapi.BatchValuesResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if len(req.Values) == 0 {
		return &dtapi.BatchValuesResponse{Results: []dtapi.RowResultWire{}}, nil
	}
	if len(req.Values) > s.config.MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrBatchTooLarge, len(req.Values))
	}

	meta, err := s.loadTableMeta(ctx, tableID)
	if err != nil {
		return nil, err
	}

	results := make([]dtapi.RowResultWire, len(req.Values))
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialize batches that touch the same table so lock versions are
		// compared against a stable snapshot for the whole batch.
		if err := s.lockTableRow(ctx, tx, tableID); err != nil {
			return err
		}

		versions := newVersionSnapshot(tx, tableID)
		touched := make(map[string]bool)

		for i, row := range req.Values {
			result, err := s.applyRow(ctx, tx, meta, versions, touched, req.LockVersions, row, create)
			if err != nil {
				return err
			}
			results[i] = result
		}

		// Bump each touched scope once per batch. Rows in a single batch
		// share the tokens fetched before dispatch, so per-row bumps would
		// make later rows conflict with earlier ones.
		return bumpVersions(ctx, tx, tableID, meta.LockLevel, touched)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply batch: %w", err)
	}

	return &dtapi.BatchValuesResponse{Results: results}, nil
}

// applyRow processes a single row mutation and returns its outcome.
// Per-row problems come back as statuses; SQL failures abort the batch.
func (s *DataTableService) applyRow(ctx context.Context, tx pgx.Tx, meta *tableMeta, versions *versionSnapshot, touched map[string]bool, tokens map[string]string, row dtapi.RowMutationWire, create bool) (dtapi.RowResultWire, error) {
	pk, err := rowPrimaryKey(meta, row)
	if err != nil {
		return statusValidationError(err), nil
	}
	if err := validateRowValues(meta, row); err != nil {
		return statusValidationError(err), nil
	}

	exists, err := rowExists(ctx, tx, meta.ID, pk)
	if err != nil {
		return dtapi.RowResultWire{}, fmt.Errorf("row existence check failed for %q: %w", pk, err)
	}
	if create && exists {
		return statusValidationError(fmt.Errorf("row %q already exists", pk)), nil
	}
	if !create && !exists {
		return statusNotFound(), nil
	}

	// Optimistic concurrency: every scope the write touches must carry a
	// token matching the stored version at batch start.
	for _, scope := range rowScopes(meta, pk, row) {
		current, err := versions.get(ctx, meta.LockLevel, scope)
		if err != nil {
			return dtapi.RowResultWire{}, fmt.Errorf("lock version lookup failed for scope %q: %w", scopeLabel(scope), err)
		}
		token, ok := tokens[scope]
		if !ok {
			return statusConflict(fmt.Sprintf("missing lock version for scope %q", scopeLabel(scope))), nil
		}
		if token != strconv.FormatInt(current, 10) {
			return statusConflict(fmt.Sprintf("stale lock version for scope %q: have %s, want %d", scopeLabel(scope), token, current)), nil
		}
	}

	if create {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dt.dt_row (table_id, pk, primary_values) VALUES ($1, $2, $3)`,
			meta.ID, pk, row.PrimaryValues); err != nil {
			return dtapi.RowResultWire{}, fmt.Errorf("row insert failed for %q: %w", pk, err)
		}
	}

	for _, fv := range row.Attributes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dt.dt_value (table_id, pk, attribute_name, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (table_id, pk, attribute_name) DO UPDATE SET value = EXCLUDED.value`,
			meta.ID, pk, fv.AttributeName, fv.Value); err != nil {
			return dtapi.RowResultWire{}, fmt.Errorf("value write failed for %q.%s: %w", pk, fv.AttributeName, err)
		}
	}

	for _, scope := range rowScopes(meta, pk, row) {
		touched[scope] = true
	}
	return statusOK(), nil
}

// rowPrimaryKey validates the primary values against the table's primary
// attributes and renders the canonical key string.
func rowPrimaryKey(meta *tableMeta, row dtapi.RowMutationWire) (string, error) {
	if len(meta.PrimaryOrder) == 0 {
		return "", fmt.Errorf("table %q has no primary attributes", meta.Name)
	}

	byName := make(map[string]string, len(row.PrimaryValues))
	for _, fv := range row.PrimaryValues {
		attr, ok := meta.Attrs[fv.AttributeName]
		if !ok {
			return "", fmt.Errorf("unknown attribute %q", fv.AttributeName)
		}
		if !attr.Primary {
			return "", fmt.Errorf("attribute %q is not a primary attribute", fv.AttributeName)
		}
		if _, dup := byName[fv.AttributeName]; dup {
			return "", fmt.Errorf("duplicate primary value for %q", fv.AttributeName)
		}
		byName[fv.AttributeName] = fv.Value
	}
	if len(byName) != len(meta.PrimaryOrder) {
		return "", fmt.Errorf("expected %d primary values, got %d", len(meta.PrimaryOrder), len(byName))
	}

	parts := make([]string, len(meta.PrimaryOrder))
	for i, name := range meta.PrimaryOrder {
		v, ok := byName[name]
		if !ok {
			return "", fmt.Errorf("missing primary value for %q", name)
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f"), nil
}

// rowScopes mirrors the client's scope derivation for the table's lock level.
func rowScopes(meta *tableMeta, pk string, row dtapi.RowMutationWire) []string {
	switch meta.LockLevel {
	case datatable.LockLevelNone:
		return nil
	case datatable.LockLevelDataTable:
		return []string{""}
	case datatable.LockLevelPrimaryValue:
		return []string{pk}
	case datatable.LockLevelAttribute:
		scopes := make([]string, 0, len(row.Attributes))
		for _, fv := range row.Attributes {
			scopes = append(scopes, fv.AttributeName)
		}
		return scopes
	case datatable.LockLevelValue:
		scopes := make([]string, 0, len(row.Attributes))
		for _, fv := range row.Attributes {
			scopes = append(scopes, pk+"\x1f"+fv.AttributeName)
		}
		return scopes
	}
	return nil
}

func rowExists(ctx context.Context, tx pgx.Tx, tableID, pk string) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, `
		SELECT 1 FROM dt.dt_row WHERE table_id = $1 AND pk = $2`,
		tableID, pk).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// versionSnapshot reads each scope's stored lock version once per batch
// and caches it, so every row in the batch compares against the same value.
type versionSnapshot struct {
	tx      pgx.Tx
	tableID string
	cache   map[string]int64
}

func newVersionSnapshot(tx pgx.Tx, tableID string) *versionSnapshot {
	return &versionSnapshot{tx: tx, tableID: tableID, cache: make(map[string]int64)}
}

func (v *versionSnapshot) get(ctx context.Context, level datatable.LockLevel, scope string) (int64, error) {
	if cached, ok := v.cache[scope]; ok {
		return cached, nil
	}

	var (
		version int64
		err     error
	)
	switch level {
	case datatable.LockLevelDataTable:
		err = v.tx.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_table WHERE id = $1`,
			v.tableID).Scan(&version)
	case datatable.LockLevelPrimaryValue:
		err = v.tx.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_row WHERE table_id = $1 AND pk = $2`,
			v.tableID, scope).Scan(&version)
	case datatable.LockLevelAttribute:
		err = v.tx.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_attribute WHERE table_id = $1 AND name = $2`,
			v.tableID, scope).Scan(&version)
	case datatable.LockLevelValue:
		pk, attr, ok := splitValueScope(scope)
		if !ok {
			return 0, fmt.Errorf("malformed VALUE scope %q", scope)
		}
		err = v.tx.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_value WHERE table_id = $1 AND pk = $2 AND attribute_name = $3`,
			v.tableID, pk, attr).Scan(&version)
	default:
		return 0, fmt.Errorf("%w: %q", datatable.ErrUnknownLockLevel, level)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		version = 0
		err = nil
	}
	if err != nil {
		return 0, err
	}

	v.cache[scope] = version
	return version, nil
}

// bumpVersions advances the lock version of every scope the batch wrote.
func bumpVersions(ctx context.Context, tx pgx.Tx, tableID string, level datatable.LockLevel, touched map[string]bool) error {
	for scope := range touched {
		var err error
		switch level {
		case datatable.LockLevelDataTable:
			_, err = tx.Exec(ctx, `
				UPDATE dt.dt_table SET lock_version = lock_version + 1 WHERE id = $1`,
				tableID)
		case datatable.LockLevelPrimaryValue:
			_, err = tx.Exec(ctx, `
				UPDATE dt.dt_row SET lock_version = lock_version + 1 WHERE table_id = $1 AND pk = $2`,
				tableID, scope)
		case datatable.LockLevelAttribute:
			_, err = tx.Exec(ctx, `
				UPDATE dt.dt_attribute SET lock_version = lock_version + 1 WHERE table_id = $1 AND name = $2`,
				tableID, scope)
		case datatable.LockLevelValue:
			pk, attr, ok := splitValueScope(scope)
			if !ok {
				return fmt.Errorf("malformed VALUE scope %q", scope)
			}
			_, err = tx.Exec(ctx, `
				UPDATE dt.dt_value SET lock_version = lock_version + 1 WHERE table_id = $1 AND pk = $2 AND attribute_name = $3`,
				tableID, pk, attr)
		}
		if err != nil {
			return fmt.Errorf("failed to bump lock version for scope %q: %w", scope, err)
		}
	}
	return nil
}

// scopeLabel renders a scope key for error messages, making the key
// separator visible.
func scopeLabel(scope string) string {
	if scope == "" {
		return "<table>"
	}
	return strings.ReplaceAll(scope, "\x1f", "|")
}
