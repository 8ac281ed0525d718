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
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
)

var (
	// ErrTableNotFound is returned when the referenced table does not exist.
	ErrTableNotFound = errors.New("data table not found")
	// ErrDuplicateTable is returned when a table name is already taken.
	ErrDuplicateTable = errors.New("data table already exists")
	// ErrDuplicateAttribute is returned when an attribute name is already taken.
	ErrDuplicateAttribute = errors.New("attribute already exists")
)

const uniqueViolation = "23505"

// CreateTable provisions a new table for the service's instance.
func (s *DataTableService) CreateTable(ctx context.Context, req *dtapi.CreateTableRequest) (*dtapi.TableResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("table name is required")
	}
	lockLevel := req.ValueLockLevel
	if lockLevel == "" {
		lockLevel = string(datatable.LockLevelNone)
	}
	if !datatable.LockLevel(lockLevel).Valid() {
		return nil, fmt.Errorf("%w: %q", datatable.ErrUnknownLockLevel, lockLevel)
	}
	timeZone := req.TimeZone
	if timeZone == "" {
		timeZone = "UTC"
	}
	status := req.Status
	if status == "" {
		status = "PUBLISHED"
	}
	tags := req.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dt.dt_table (instance_id, name, description, time_zone, value_lock_level, status, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		s.config.InstanceID, req.Name, req.Description, timeZone, lockLevel, status, tags,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTable, req.Name)
		}
		return nil, fmt.Errorf("failed to create table %q: %w", req.Name, err)
	}

	s.logger.Info("Created data table", "name", req.Name, "id", id, "lock_level", lockLevel)
	return &dtapi.TableResponse{
		ID:             id,
		Name:           req.Name,
		Description:    req.Description,
		TimeZone:       timeZone,
		ValueLockLevel: lockLevel,
		Status:         status,
		Tags:           tags,
	}, nil
}

// ListTables returns all tables for the service's instance.
func (s *DataTableService) ListTables(ctx context.Context) (*dtapi.ListTablesResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, time_zone, value_lock_level, status, tags
		FROM dt.dt_table
		WHERE instance_id = $1
		ORDER BY name`,
		s.config.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	resp := &dtapi.ListTablesResponse{Tables: []dtapi.TableResponse{}}
	for rows.Next() {
		var t dtapi.TableResponse
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.TimeZone, &t.ValueLockLevel, &t.Status, &t.Tags); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		resp.Tables = append(resp.Tables, t)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("failed to list tables: %w", rows.Err())
	}
	return resp, nil
}

// DeleteTable removes a table and all dependent attributes, rows and values.
func (s *DataTableService) DeleteTable(ctx context.Context, tableID string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM dt.dt_table WHERE id = $1 AND instance_id = $2`,
		tableID, s.config.InstanceID)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTableNotFound
	}
	s.logger.Info("Deleted data table", "id", tableID)
	return nil
}

// CreateAttribute appends an attribute definition to a table.
func (s *DataTableService) CreateAttribute(ctx context.Context, tableID string, req *dtapi.CreateAttributeRequest) (*dtapi.AttributeResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("attribute name is required")
	}
	if !datatable.ValueKind(req.ValueType).Valid() {
		return nil, fmt.Errorf("unknown value type %q", req.ValueType)
	}

	var resp *dtapi.AttributeResponse
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.lockTableRow(ctx, tx, tableID); err != nil {
			return err
		}

		var position int
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(position), -1) + 1 FROM dt.dt_attribute WHERE table_id = $1`,
			tableID).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to compute attribute position: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO dt.dt_attribute (table_id, name, value_type, description, is_primary, position, validation)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tableID, req.Name, req.ValueType, req.Description, req.Primary, position, req.Validation)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %q", ErrDuplicateAttribute, req.Name)
			}
			return fmt.Errorf("failed to create attribute %q: %w", req.Name, err)
		}

		resp = &dtapi.AttributeResponse{
			Name:        req.Name,
			ValueType:   req.ValueType,
			Description: req.Description,
			Primary:     req.Primary,
			Position:    position,
			Validation:  req.Validation,
			LockVersion: "0",
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Created attribute", "table_id", tableID, "name", req.Name, "position", resp.Position)
	return resp, nil
}

// ListAttributes returns a table's attributes in declaration order.
func (s *DataTableService) ListAttributes(ctx context.Context, tableID string) (*dtapi.ListAttributesResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := s.tableExists(ctx, tableID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, value_type, description, is_primary, position, validation, lock_version
		FROM dt.dt_attribute
		WHERE table_id = $1
		ORDER BY position`,
		tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	defer rows.Close()

	resp := &dtapi.ListAttributesResponse{Attributes: []dtapi.AttributeResponse{}}
	for rows.Next() {
		var a dtapi.AttributeResponse
		var lockVersion int64
		if err := rows.Scan(&a.Name, &a.ValueType, &a.Description, &a.Primary, &a.Position, &a.Validation, &lockVersion); err != nil {
			return nil, fmt.Errorf("failed to scan attribute row: %w", err)
		}
		a.LockVersion = strconv.FormatInt(lockVersion, 10)
		resp.Attributes = append(resp.Attributes, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", rows.Err())
	}
	return resp, nil
}

// GetLockVersion returns the current lock version for one scope at the
// given lock level. Scopes with no stored state report version 0.
func (s *DataTableService) GetLockVersion(ctx context.Context, tableID string, level datatable.LockLevel, scope string) (*dtapi.LockVersionResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	var (
		version int64
		err     error
	)
	switch level {
	case datatable.LockLevelNone:
		version = 0
	case datatable.LockLevelDataTable:
		err = s.pool.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_table WHERE id = $1 AND instance_id = $2`,
			tableID, s.config.InstanceID).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
	case datatable.LockLevelPrimaryValue:
		err = s.pool.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_row WHERE table_id = $1 AND pk = $2`,
			tableID, scope).Scan(&version)
	case datatable.LockLevelAttribute:
		err = s.pool.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_attribute WHERE table_id = $1 AND name = $2`,
			tableID, scope).Scan(&version)
	case datatable.LockLevelValue:
		pk, attr, ok := splitValueScope(scope)
		if !ok {
			return nil, fmt.Errorf("malformed VALUE scope %q", scope)
		}
		err = s.pool.QueryRow(ctx, `
			SELECT lock_version FROM dt.dt_value WHERE table_id = $1 AND pk = $2 AND attribute_name = $3`,
			tableID, pk, attr).Scan(&version)
	default:
		return nil, fmt.Errorf("%w: %q", datatable.ErrUnknownLockLevel, level)
	}

	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read lock version: %w", err)
	}
	return &dtapi.LockVersionResponse{LockVersion: strconv.FormatInt(version, 10)}, nil
}

// ListValues returns up to limit stored rows with their attribute values.
func (s *DataTableService) ListValues(ctx context.Context, tableID string, limit int) (*dtapi.ListValuesResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	if err := s.tableExists(ctx, tableID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT pk, primary_values FROM dt.dt_row
		WHERE table_id = $1
		ORDER BY pk
		LIMIT $2`,
		tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	type rowIdent struct {
		pk      string
		primary []dtapi.FieldValueWire
	}
	var idents []rowIdent
	for rows.Next() {
		var ident rowIdent
		if err := rows.Scan(&ident.pk, &ident.primary); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		idents = append(idents, ident)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("failed to list rows: %w", rows.Err())
	}

	resp := &dtapi.ListValuesResponse{Values: []dtapi.RowWire{}}
	for _, ident := range idents {
		valueRows, err := s.pool.Query(ctx, `
			SELECT v.attribute_name, v.value
			FROM dt.dt_value v
			JOIN dt.dt_attribute a ON a.table_id = v.table_id AND a.name = v.attribute_name
			WHERE v.table_id = $1 AND v.pk = $2
			ORDER BY a.position`,
			tableID, ident.pk)
		if err != nil {
			return nil, fmt.Errorf("failed to list values for row: %w", err)
		}
		var attrs []dtapi.FieldValueWire
		for valueRows.Next() {
			var fv dtapi.FieldValueWire
			if err := valueRows.Scan(&fv.AttributeName, &fv.Value); err != nil {
				valueRows.Close()
				return nil, fmt.Errorf("failed to scan value row: %w", err)
			}
			attrs = append(attrs, fv)
		}
		valueRows.Close()
		if valueRows.Err() != nil {
			return nil, fmt.Errorf("failed to list values for row: %w", valueRows.Err())
		}
		resp.Values = append(resp.Values, dtapi.RowWire{PrimaryValues: ident.primary, Attributes: attrs})
	}
	return resp, nil
}

// attrMeta is an attribute definition loaded for request processing.
type attrMeta struct {
	Name       string
	ValueType  datatable.ValueKind
	Primary    bool
	Position   int
	Validation *datatable.ValidationRule
}

// tableMeta is a table definition loaded for request processing.
type tableMeta struct {
	ID           string
	Name         string
	LockLevel    datatable.LockLevel
	Attrs        map[string]attrMeta
	PrimaryOrder []string
}

func (s *DataTableService) tableExists(ctx context.Context, tableID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM dt.dt_table WHERE id = $1 AND instance_id = $2`,
		tableID, s.config.InstanceID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTableNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up table: %w", err)
	}
	return nil
}

// lockTableRow takes a row lock on the table definition to serialize
// schema changes and version bumps.
func (s *DataTableService) lockTableRow(ctx context.Context, tx pgx.Tx, tableID string) error {
	var one int
	err := tx.QueryRow(ctx, `
		SELECT 1 FROM dt.dt_table WHERE id = $1 AND instance_id = $2 FOR UPDATE`,
		tableID, s.config.InstanceID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTableNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock table row: %w", err)
	}
	return nil
}

func (s *DataTableService) loadTableMeta(ctx context.Context, tableID string) (*tableMeta, error) {
	meta := &tableMeta{ID: tableID, Attrs: make(map[string]attrMeta)}

	err := s.pool.QueryRow(ctx, `
		SELECT name, value_lock_level FROM dt.dt_table WHERE id = $1 AND instance_id = $2`,
		tableID, s.config.InstanceID).Scan(&meta.Name, &meta.LockLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load table: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, value_type, is_primary, position, validation
		FROM dt.dt_attribute
		WHERE table_id = $1
		ORDER BY position`,
		tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a attrMeta
		if err := rows.Scan(&a.Name, &a.ValueType, &a.Primary, &a.Position, &a.Validation); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		meta.Attrs[a.Name] = a
		if a.Primary {
			meta.PrimaryOrder = append(meta.PrimaryOrder, a.Name)
		}
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("failed to load attributes: %w", rows.Err())
	}
	return meta, nil
}

// splitValueScope splits a VALUE level scope into primary key and
// attribute name. The attribute is the segment after the last separator.
func splitValueScope(scope string) (pk, attr string, ok bool) {
	i := strings.LastIndex(scope, "\x1f")
	if i < 0 {
		return "", "", false
	}
	return scope[:i], scope[i+1:], true
}
