// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LockLevel is the granularity at which the remote service enforces
// optimistic concurrency on a data table.
type LockLevel string

const (
	LockLevelNone         LockLevel = "NONE"
	LockLevelDataTable    LockLevel = "DATA_TABLE"
	LockLevelPrimaryValue LockLevel = "PRIMARY_VALUE"
	LockLevelAttribute    LockLevel = "ATTRIBUTE"
	LockLevelValue        LockLevel = "VALUE"
)

// Valid reports whether l is one of the known lock levels.
func (l LockLevel) Valid() bool {
	switch l {
	case LockLevelNone, LockLevelDataTable, LockLevelPrimaryValue, LockLevelAttribute, LockLevelValue:
		return true
	}
	return false
}

// ValueKind is the declared type of an attribute value.
type ValueKind string

const (
	KindText       ValueKind = "TEXT"
	KindNumber     ValueKind = "NUMBER"
	KindBoolean    ValueKind = "BOOLEAN"
	KindTextList   ValueKind = "TEXT_LIST"
	KindNumberList ValueKind = "NUMBER_LIST"
)

// Valid reports whether k is one of the known value kinds.
func (k ValueKind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindBoolean, KindTextList, KindNumberList:
		return true
	}
	return false
}

// Value is a typed attribute value literal. List kinds carry ordered
// sequences of scalars; any delimiter-based textual encoding is the config
// loader's concern and never appears here.
type Value struct {
	Kind       ValueKind
	Text       string
	Number     float64
	Bool       bool
	TextList   []string
	NumberList []float64
}

// TextValue builds a TEXT value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// NumberValue builds a NUMBER value.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// BoolValue builds a BOOLEAN value.
func BoolValue(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// TextListValue builds a TEXT_LIST value from an ordered sequence of strings.
func TextListValue(items ...string) Value { return Value{Kind: KindTextList, TextList: items} }

// NumberListValue builds a NUMBER_LIST value from an ordered sequence of numbers.
func NumberListValue(items ...float64) Value {
	return Value{Kind: KindNumberList, NumberList: items}
}

// Wire returns the string form the remote service expects: scalars as plain
// text, list kinds as JSON arrays.
func (v Value) Wire() (string, error) {
	switch v.Kind {
	case KindText:
		return v.Text, nil
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64), nil
	case KindBoolean:
		return strconv.FormatBool(v.Bool), nil
	case KindTextList:
		b, err := json.Marshal(v.TextList)
		if err != nil {
			return "", fmt.Errorf("encode text list: %w", err)
		}
		return string(b), nil
	case KindNumberList:
		b, err := json.Marshal(v.NumberList)
		if err != nil {
			return "", fmt.Errorf("encode number list: %w", err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("unknown value kind %q", v.Kind)
}

// String renders the value for logs and scope keys.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindTextList:
		return strings.Join(v.TextList, ",")
	case KindNumberList:
		parts := make([]string, len(v.NumberList))
		for i, n := range v.NumberList {
			parts[i] = strconv.FormatFloat(n, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// FieldValue pairs an attribute name with a value literal.
type FieldValue struct {
	Attribute string
	Value     Value
}

// DesiredRow is one unit of desired state: the ordered primary-key values
// identifying the row plus the ordered non-key attribute values to write.
type DesiredRow struct {
	PrimaryValues []FieldValue
	Attributes    []FieldValue
}

// EnumRule constrains a TEXT attribute to a fixed set of values.
type EnumRule struct {
	Strict bool     `json:"strict"`
	Values []string `json:"values"`
}

// ValidationRule carries the optional per-attribute validation constraints
// understood by the remote service.
type ValidationRule struct {
	MinLength        *int      `json:"minLength,omitempty"`
	MaxLength        *int      `json:"maxLength,omitempty"`
	IgnoreCase       *bool     `json:"ignoreCase,omitempty"`
	Minimum          *float64  `json:"minimum,omitempty"`
	Maximum          *float64  `json:"maximum,omitempty"`
	ExclusiveMinimum *bool     `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *bool     `json:"exclusiveMaximum,omitempty"`
	MultipleOf       *float64  `json:"multipleOf,omitempty"`
	MinValues        *int      `json:"minValues,omitempty"`
	MaxValues        *int      `json:"maxValues,omitempty"`
	Enum             *EnumRule `json:"enum,omitempty"`
}

// AttributeSpec declares one attribute of a data table.
type AttributeSpec struct {
	Name        string
	ValueType   ValueKind
	Description string
	Primary     bool
	Validation  *ValidationRule
}

// TableSpec declares a data table to provision.
type TableSpec struct {
	Name        string
	Description string
	TimeZone    string
	LockLevel   LockLevel
	Tags        map[string]string
}

// TableHandle identifies a provisioned table. PrimaryOrder is the ordered
// set of primary-key attribute names; the ordering is significant for
// composite-key matching.
type TableHandle struct {
	ID           string
	Name         string
	LockLevel    LockLevel
	PrimaryOrder []string
}
