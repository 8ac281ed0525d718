// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import "fmt"

// ValidateRow checks a desired row against the table's primary-key
// declaration: primary values must cover every primary attribute exactly
// once, and non-key attributes must not reference primary attributes.
// Violations are configuration errors reported before any remote call.
func ValidateRow(table TableHandle, row DesiredRow) error {
	primary := make(map[string]bool, len(table.PrimaryOrder))
	for _, name := range table.PrimaryOrder {
		primary[name] = false
	}

	for _, fv := range row.PrimaryValues {
		seen, ok := primary[fv.Attribute]
		if !ok {
			return fmt.Errorf("%w: %q is not a primary attribute", ErrPrimaryKeyMismatch, fv.Attribute)
		}
		if seen {
			return fmt.Errorf("%w: duplicate primary value for %q", ErrPrimaryKeyMismatch, fv.Attribute)
		}
		primary[fv.Attribute] = true
	}
	for _, name := range table.PrimaryOrder {
		if !primary[name] {
			return fmt.Errorf("%w: missing primary value for %q", ErrPrimaryKeyMismatch, name)
		}
	}

	seen := make(map[string]bool, len(row.Attributes))
	for _, fv := range row.Attributes {
		if _, isPrimary := primary[fv.Attribute]; isPrimary {
			return fmt.Errorf("%w: %q is a primary attribute and cannot appear in attributes", ErrPrimaryKeyMismatch, fv.Attribute)
		}
		if seen[fv.Attribute] {
			return fmt.Errorf("%w: duplicate attribute %q", ErrPrimaryKeyMismatch, fv.Attribute)
		}
		seen[fv.Attribute] = true
	}
	return nil
}
