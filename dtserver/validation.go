// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package dtserver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
)

// validateRowValues checks a row's non-key values against the attribute
// schema: every attribute must be declared, non-primary, unique within the
// row, parse for its declared kind, and satisfy its validation rule.
func validateRowValues(meta *tableMeta, row dtapi.RowMutationWire) error {
	seen := make(map[string]bool, len(row.Attributes))
	for _, fv := range row.Attributes {
		attr, ok := meta.Attrs[fv.AttributeName]
		if !ok {
			return fmt.Errorf("unknown attribute %q", fv.AttributeName)
		}
		if attr.Primary {
			return fmt.Errorf("primary attribute %q cannot be set as a value", fv.AttributeName)
		}
		if seen[fv.AttributeName] {
			return fmt.Errorf("duplicate attribute %q", fv.AttributeName)
		}
		seen[fv.AttributeName] = true

		if err := checkWireValue(attr.ValueType, attr.Validation, fv.Value); err != nil {
			return fmt.Errorf("attribute %q: %w", fv.AttributeName, err)
		}
	}
	return nil
}

// checkWireValue parses a wire-form value for its declared kind and
// enforces the attribute's validation rule.
func checkWireValue(kind datatable.ValueKind, rule *datatable.ValidationRule, raw string) error {
	switch kind {
	case datatable.KindText:
		return checkText(rule, raw)
	case datatable.KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", raw)
		}
		return checkNumber(rule, n)
	case datatable.KindBoolean:
		if raw != "true" && raw != "false" {
			return fmt.Errorf("not a boolean: %q", raw)
		}
		return nil
	case datatable.KindTextList:
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("not a text list: %q", raw)
		}
		if err := checkListLength(rule, len(items)); err != nil {
			return err
		}
		for i, item := range items {
			if err := checkText(rule, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	case datatable.KindNumberList:
		var items []float64
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("not a number list: %q", raw)
		}
		if err := checkListLength(rule, len(items)); err != nil {
			return err
		}
		for i, item := range items {
			if err := checkNumber(rule, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown value kind %q", kind)
}

func checkText(rule *datatable.ValidationRule, s string) error {
	if rule == nil {
		return nil
	}
	if rule.MinLength != nil && len(s) < *rule.MinLength {
		return fmt.Errorf("value shorter than %d characters", *rule.MinLength)
	}
	if rule.MaxLength != nil && len(s) > *rule.MaxLength {
		return fmt.Errorf("value longer than %d characters", *rule.MaxLength)
	}
	if rule.Enum != nil && rule.Enum.Strict {
		ignoreCase := rule.IgnoreCase != nil && *rule.IgnoreCase
		for _, allowed := range rule.Enum.Values {
			if s == allowed || (ignoreCase && strings.EqualFold(s, allowed)) {
				return nil
			}
		}
		return fmt.Errorf("value %q not in enum", s)
	}
	return nil
}

func checkNumber(rule *datatable.ValidationRule, n float64) error {
	if rule == nil {
		return nil
	}
	if rule.Minimum != nil {
		exclusive := rule.ExclusiveMinimum != nil && *rule.ExclusiveMinimum
		if exclusive && n <= *rule.Minimum {
			return fmt.Errorf("value %v not greater than %v", n, *rule.Minimum)
		}
		if !exclusive && n < *rule.Minimum {
			return fmt.Errorf("value %v below minimum %v", n, *rule.Minimum)
		}
	}
	if rule.Maximum != nil {
		exclusive := rule.ExclusiveMaximum != nil && *rule.ExclusiveMaximum
		if exclusive && n >= *rule.Maximum {
			return fmt.Errorf("value %v not less than %v", n, *rule.Maximum)
		}
		if !exclusive && n > *rule.Maximum {
			return fmt.Errorf("value %v above maximum %v", n, *rule.Maximum)
		}
	}
	if rule.MultipleOf != nil && *rule.MultipleOf != 0 {
		quotient := n / *rule.MultipleOf
		if math.Abs(quotient-math.Round(quotient)) > 1e-9 {
			return fmt.Errorf("value %v not a multiple of %v", n, *rule.MultipleOf)
		}
	}
	return nil
}

func checkListLength(rule *datatable.ValidationRule, count int) error {
	if rule == nil {
		return nil
	}
	if rule.MinValues != nil && count < *rule.MinValues {
		return fmt.Errorf("list has fewer than %d values", *rule.MinValues)
	}
	if rule.MaxValues != nil && count > *rule.MaxValues {
		return fmt.Errorf("list has more than %d values", *rule.MaxValues)
	}
	return nil
}
