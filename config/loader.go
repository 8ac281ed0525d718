// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package config loads the deployment configuration tree: the top-level
// data_tables_config.json plus per-table attribute and value files. All
// delimiter parsing of list values happens here; the core only ever sees
// typed values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
)

// ErrInvalidTableName is returned for table names that could escape the
// configuration directory.
var ErrInvalidTableName = errors.New("invalid table name")

// DefaultTimeZone is applied to tables that do not declare one.
const DefaultTimeZone = "US/Eastern"

// TableConfig declares one data table to deploy.
type TableConfig struct {
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	TimeZone       string            `json:"timeZone,omitempty"`
	ValueLockLevel string            `json:"valueLockLevel,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// EngineConfig carries the reconciliation tuning knobs.
type EngineConfig struct {
	BatchSize            int  `json:"batchSize,omitempty"`
	MaxAttempts          int  `json:"maxAttempts,omitempty"`
	RetryDelayMs         int  `json:"retryDelayMs,omitempty"`
	RetryTransportErrors bool `json:"retryTransportErrors,omitempty"`
}

// DeployConfig is the parsed data_tables_config.json.
type DeployConfig struct {
	ServerURL   string        `json:"serverUrl"`
	InstanceID  string        `json:"instanceId"`
	JournalPath string        `json:"journalPath,omitempty"`
	Engine      *EngineConfig `json:"engine,omitempty"`
	DataTables  []TableConfig `json:"dataTables"`
}

// ReconcilerConfig converts the engine section into a core config,
// falling back to the core defaults for unset values.
func (c *DeployConfig) ReconcilerConfig() datatable.Config {
	cfg := datatable.DefaultConfig()
	if c.Engine == nil {
		return cfg
	}
	if c.Engine.BatchSize > 0 {
		cfg.BatchSize = c.Engine.BatchSize
	}
	if c.Engine.MaxAttempts > 0 {
		cfg.MaxAttempts = c.Engine.MaxAttempts
	}
	if c.Engine.RetryDelayMs > 0 {
		cfg.RetryDelay = time.Duration(c.Engine.RetryDelayMs) * time.Millisecond
	}
	cfg.RetryTransportErrors = c.Engine.RetryTransportErrors
	return cfg
}

// TableSpec converts a table declaration into a provisioning spec,
// applying the time zone and lock level defaults.
func (t TableConfig) TableSpec() datatable.TableSpec {
	timeZone := t.TimeZone
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}
	lockLevel := datatable.LockLevel(t.ValueLockLevel)
	if lockLevel == "" {
		lockLevel = datatable.LockLevelNone
	}
	return datatable.TableSpec{
		Name:        t.Name,
		Description: t.Description,
		TimeZone:    timeZone,
		LockLevel:   lockLevel,
		Tags:        t.Tags,
	}
}

// LoadDeployConfig reads data_tables_config.json from dir.
func LoadDeployConfig(dir string) (*DeployConfig, error) {
	var cfg DeployConfig
	found, err := loadJSONFile(filepath.Join(dir, "data_tables_config.json"), &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("configuration file not found in %q", dir)
	}
	if cfg.InstanceID == "" {
		return nil, errors.New("configuration requires an instanceId")
	}
	if len(cfg.DataTables) == 0 {
		return nil, errors.New("configuration declares no data tables")
	}
	for _, table := range cfg.DataTables {
		if err := checkTableName(table.Name); err != nil {
			return nil, err
		}
		if table.ValueLockLevel != "" && !datatable.LockLevel(table.ValueLockLevel).Valid() {
			return nil, fmt.Errorf("table %q: %w: %q", table.Name, datatable.ErrUnknownLockLevel, table.ValueLockLevel)
		}
	}
	return &cfg, nil
}

type attributesFile struct {
	Attributes []attributeConfig `json:"attributes"`
}

type attributeConfig struct {
	Name        string                    `json:"name"`
	ValueType   string                    `json:"valueType"`
	Description string                    `json:"description,omitempty"`
	Primary     bool                      `json:"primary,omitempty"`
	Validation  *datatable.ValidationRule `json:"validation,omitempty"`
}

// LoadAttributes reads attributes/<table>.json. A missing file returns a
// nil slice and no error; the deployer treats that table as skipped.
func LoadAttributes(dir, tableName string) ([]datatable.AttributeSpec, error) {
	if err := checkTableName(tableName); err != nil {
		return nil, err
	}

	var file attributesFile
	found, err := loadJSONFile(filepath.Join(dir, "attributes", tableName+".json"), &file)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	specs := make([]datatable.AttributeSpec, len(file.Attributes))
	for i, attr := range file.Attributes {
		kind := datatable.ValueKind(attr.ValueType)
		if !kind.Valid() {
			return nil, fmt.Errorf("table %q attribute %q: unknown value type %q", tableName, attr.Name, attr.ValueType)
		}
		specs[i] = datatable.AttributeSpec{
			Name:        attr.Name,
			ValueType:   kind,
			Description: attr.Description,
			Primary:     attr.Primary,
			Validation:  attr.Validation,
		}
	}
	return specs, nil
}

// PrimaryOrder returns the primary attribute names in declaration order.
func PrimaryOrder(attrs []datatable.AttributeSpec) []string {
	var order []string
	for _, attr := range attrs {
		if attr.Primary {
			order = append(order, attr.Name)
		}
	}
	return order
}

type valuesFile struct {
	Values []valueEntry `json:"values"`
}

type valueEntry struct {
	PrimaryValues []fieldConfig `json:"primaryValues"`
	Attributes    []fieldConfig `json:"attributes"`
}

type fieldConfig struct {
	AttributeName string `json:"attributeName"`
	Value         string `json:"value"`
}

// LoadValues reads attribute_values/<table>.json and converts each entry
// into a typed desired row. List kinds are written in the config as
// comma-delimited strings and parsed into slices here. A missing file
// returns a nil slice and no error.
func LoadValues(dir, tableName string, attrs []datatable.AttributeSpec) ([]datatable.DesiredRow, error) {
	if err := checkTableName(tableName); err != nil {
		return nil, err
	}

	var file valuesFile
	found, err := loadJSONFile(filepath.Join(dir, "attribute_values", tableName+".json"), &file)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	kinds := make(map[string]datatable.ValueKind, len(attrs))
	for _, attr := range attrs {
		kinds[attr.Name] = attr.ValueType
	}

	rows := make([]datatable.DesiredRow, len(file.Values))
	for i, entry := range file.Values {
		row := datatable.DesiredRow{
			PrimaryValues: make([]datatable.FieldValue, len(entry.PrimaryValues)),
			Attributes:    make([]datatable.FieldValue, len(entry.Attributes)),
		}
		for j, field := range entry.PrimaryValues {
			value, err := parseConfigValue(kinds, field)
			if err != nil {
				return nil, fmt.Errorf("table %q row %d: %w", tableName, i, err)
			}
			row.PrimaryValues[j] = datatable.FieldValue{Attribute: field.AttributeName, Value: value}
		}
		for j, field := range entry.Attributes {
			value, err := parseConfigValue(kinds, field)
			if err != nil {
				return nil, fmt.Errorf("table %q row %d: %w", tableName, i, err)
			}
			row.Attributes[j] = datatable.FieldValue{Attribute: field.AttributeName, Value: value}
		}
		rows[i] = row
	}
	return rows, nil
}

// parseConfigValue converts a textual config value to its declared kind.
func parseConfigValue(kinds map[string]datatable.ValueKind, field fieldConfig) (datatable.Value, error) {
	kind, ok := kinds[field.AttributeName]
	if !ok {
		return datatable.Value{}, fmt.Errorf("value for undeclared attribute %q", field.AttributeName)
	}

	switch kind {
	case datatable.KindText:
		return datatable.TextValue(field.Value), nil
	case datatable.KindNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(field.Value), 64)
		if err != nil {
			return datatable.Value{}, fmt.Errorf("attribute %q: cannot convert %q to NUMBER", field.AttributeName, field.Value)
		}
		return datatable.NumberValue(n), nil
	case datatable.KindBoolean:
		switch strings.TrimSpace(field.Value) {
		case "true":
			return datatable.BoolValue(true), nil
		case "false":
			return datatable.BoolValue(false), nil
		}
		return datatable.Value{}, fmt.Errorf("attribute %q: cannot convert %q to BOOLEAN", field.AttributeName, field.Value)
	case datatable.KindTextList:
		return datatable.TextListValue(strings.Split(field.Value, ",")...), nil
	case datatable.KindNumberList:
		parts := strings.Split(field.Value, ",")
		numbers := make([]float64, len(parts))
		for i, part := range parts {
			n, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return datatable.Value{}, fmt.Errorf("attribute %q: cannot convert %q to NUMBER_LIST", field.AttributeName, field.Value)
			}
			numbers[i] = n
		}
		return datatable.NumberListValue(numbers...), nil
	}
	return datatable.Value{}, fmt.Errorf("attribute %q: unknown value kind %q", field.AttributeName, kind)
}

// checkTableName rejects names that could traverse out of the config tree.
func checkTableName(name string) error {
	if name == "" || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

// loadJSONFile decodes path into out. It reports whether the file exists;
// a missing file is not an error.
func loadJSONFile(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot read config file %q: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("invalid JSON in config file %q: %w", path, err)
	}
	return true, nil
}
