// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package dtapi

import (
	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
)

// REST/JSON models for the data-table service HTTP API. Scope keys inside
// LockVersions use the engine's canonical form: primary-key parts joined by
// the unit separator, value scopes as "<pk>\x1f<attribute>", and the empty
// string for the whole-table scope.

// FieldValueWire is one (attribute, value) pair in wire form. List values
// are JSON-array strings; scalars are plain text.
type FieldValueWire struct {
	AttributeName string `json:"attributeName"`
	Value         string `json:"value"`
}

// RowMutationWire is a single row in a batch mutation request.
type RowMutationWire struct {
	PrimaryValues []FieldValueWire `json:"primaryValues"`
	Attributes    []FieldValueWire `json:"attributes,omitempty"`
}

// BatchValuesRequest is the body of batch-update and batch-create calls.
type BatchValuesRequest struct {
	Values       []RowMutationWire `json:"values"`
	LockVersions map[string]string `json:"lockVersions,omitempty"`
}

// Row status values returned by the service.
const (
	StatusOK              = "ok"
	StatusNotFound        = "not_found"
	StatusValidationError = "validation_error"
	StatusConflict        = "conflict"
)

// RowResultWire is the per-row verdict, in request order.
type RowResultWire struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BatchValuesResponse carries one result per submitted row.
type BatchValuesResponse struct {
	Results []RowResultWire `json:"results"`
}

// CreateTableRequest provisions a data table.
type CreateTableRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	TimeZone       string            `json:"timeZone,omitempty"`
	ValueLockLevel string            `json:"valueLockLevel,omitempty"`
	Status         string            `json:"status,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// TableResponse describes a provisioned table.
type TableResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	TimeZone       string            `json:"timeZone"`
	ValueLockLevel string            `json:"valueLockLevel"`
	Status         string            `json:"status"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// ListTablesResponse lists the instance's tables.
type ListTablesResponse struct {
	Tables []TableResponse `json:"tables"`
}

// CreateAttributeRequest declares one attribute on a table.
type CreateAttributeRequest struct {
	Name        string                    `json:"name"`
	ValueType   string                    `json:"valueType"`
	Description string                    `json:"description,omitempty"`
	Primary     bool                      `json:"primary"`
	Validation  *datatable.ValidationRule `json:"validation,omitempty"`
}

// AttributeResponse describes one attribute, in declaration order.
type AttributeResponse struct {
	Name        string                    `json:"name"`
	ValueType   string                    `json:"valueType"`
	Description string                    `json:"description,omitempty"`
	Primary     bool                      `json:"primary"`
	Position    int                       `json:"position"`
	Validation  *datatable.ValidationRule `json:"validation,omitempty"`
	LockVersion string                    `json:"lockVersion,omitempty"`
}

// ListAttributesResponse lists a table's attributes.
type ListAttributesResponse struct {
	Attributes []AttributeResponse `json:"attributes"`
}

// LockVersionResponse carries the current token for one scope.
type LockVersionResponse struct {
	LockVersion string `json:"lockVersion"`
}

// RowWire is a stored row as returned by the list-values call.
type RowWire struct {
	PrimaryValues []FieldValueWire `json:"primaryValues"`
	Attributes    []FieldValueWire `json:"attributes,omitempty"`
}

// ListValuesResponse returns stored rows for verification.
type ListValuesResponse struct {
	Values []RowWire `json:"values"`
}

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
