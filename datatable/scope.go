// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import "strings"

// PrimaryKeyString renders a row's primary key in the table's declared
// attribute order. Rows must already have passed ValidateRow, so every
// primary attribute is present exactly once.
func PrimaryKeyString(table TableHandle, row DesiredRow) string {
	byName := make(map[string]Value, len(row.PrimaryValues))
	for _, fv := range row.PrimaryValues {
		byName[fv.Attribute] = fv.Value
	}
	parts := make([]string, 0, len(table.PrimaryOrder))
	for _, name := range table.PrimaryOrder {
		parts = append(parts, byName[name].String())
	}
	return strings.Join(parts, "\x1f")
}

// ScopesForRow returns the lock scopes a write to row touches at the
// table's lock level. NONE has no scopes; DATA_TABLE has the single table
// scope; finer levels key by row, attribute, or individual value.
func ScopesForRow(table TableHandle, row DesiredRow) []ScopeKey {
	switch table.LockLevel {
	case LockLevelNone:
		return nil
	case LockLevelDataTable:
		return []ScopeKey{TableScope}
	case LockLevelPrimaryValue:
		return []ScopeKey{ScopeKey(PrimaryKeyString(table, row))}
	case LockLevelAttribute:
		scopes := make([]ScopeKey, 0, len(row.Attributes))
		for _, fv := range row.Attributes {
			scopes = append(scopes, ScopeKey(fv.Attribute))
		}
		return scopes
	case LockLevelValue:
		pk := PrimaryKeyString(table, row)
		scopes := make([]ScopeKey, 0, len(row.Attributes))
		for _, fv := range row.Attributes {
			scopes = append(scopes, ScopeKey(pk+"\x1f"+fv.Attribute))
		}
		return scopes
	}
	return nil
}
