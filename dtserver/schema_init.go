// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package dtserver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the storage tables within an existing transaction.
func (s *DataTableService) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS dt`,

		// 1) Table definitions. lock_version backs DATA_TABLE level locking.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS dt.dt_table (
			id               UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
			instance_id      TEXT        NOT NULL,
			name             TEXT        NOT NULL,
			description      TEXT        NOT NULL DEFAULT '',
			time_zone        TEXT        NOT NULL DEFAULT 'UTC',
			value_lock_level TEXT        NOT NULL DEFAULT 'NONE'
				CHECK (value_lock_level IN ('NONE','DATA_TABLE','PRIMARY_VALUE','ATTRIBUTE','VALUE')),
			status           TEXT        NOT NULL DEFAULT 'PUBLISHED',
			tags             JSONB       NOT NULL DEFAULT '{}'::jsonb,
			lock_version     BIGINT      NOT NULL DEFAULT 0,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (instance_id, name)
		)`,

		// 2) Attribute definitions. position preserves declaration order,
		// lock_version backs ATTRIBUTE level locking.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS dt.dt_attribute (
			table_id     UUID   NOT NULL REFERENCES dt.dt_table(id) ON DELETE CASCADE,
			name         TEXT   NOT NULL,
			value_type   TEXT   NOT NULL
				CHECK (value_type IN ('TEXT','NUMBER','BOOLEAN','TEXT_LIST','NUMBER_LIST')),
			description  TEXT   NOT NULL DEFAULT '',
			is_primary   BOOLEAN NOT NULL DEFAULT FALSE,
			position     INT    NOT NULL,
			validation   JSONB,
			lock_version BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (table_id, name)
		)`,

		// 3) Row identities. pk is the canonical primary-key string,
		// lock_version backs PRIMARY_VALUE level locking.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS dt.dt_row (
			table_id       UUID   NOT NULL REFERENCES dt.dt_table(id) ON DELETE CASCADE,
			pk             TEXT   NOT NULL,
			primary_values JSONB  NOT NULL,
			lock_version   BIGINT NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_id, pk)
		)`,

		// 4) Cell values in wire form. lock_version backs VALUE level locking.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS dt.dt_value (
			table_id       UUID   NOT NULL REFERENCES dt.dt_table(id) ON DELETE CASCADE,
			pk             TEXT   NOT NULL,
			attribute_name TEXT   NOT NULL,
			value          TEXT   NOT NULL,
			lock_version   BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (table_id, pk, attribute_name)
		)`,

		`CREATE INDEX IF NOT EXISTS dt_attribute_position_idx ON dt.dt_attribute(table_id, position)`,
		`CREATE INDEX IF NOT EXISTS dt_value_row_idx ON dt.dt_value(table_id, pk)`,
	}

	for i, migration := range migrations {
		s.logger.Debug("Running storage migration", "step", i+1, "total", len(migrations))
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("storage migration %d failed: %w", i+1, err)
		}
	}
	s.logger.Info("Data-table storage schema initialized", "migrations", len(migrations))

	return nil
}
