// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import "context"

// LockToken is an opaque optimistic-concurrency token issued by the remote
// service. It is never derived locally; a stale token is only ever replaced
// wholesale with a freshly fetched one.
type LockToken string

// NoToken is the sentinel for lock level NONE.
const NoToken LockToken = ""

// ScopeKey identifies the resource a lock token covers. The empty key is
// the whole-table scope used by DATA_TABLE level.
type ScopeKey string

// TableScope is the scope key for DATA_TABLE level tokens.
const TableScope ScopeKey = ""

// TokenSet maps lock scopes to their current tokens for one batch call.
type TokenSet map[ScopeKey]LockToken

// RowStatus is the remote service's per-row result taxonomy.
type RowStatus string

const (
	RowOK              RowStatus = "ok"
	RowNotFound        RowStatus = "not_found"
	RowValidationError RowStatus = "validation_error"
	RowConflict        RowStatus = "conflict"
)

// RowResult is the remote service's verdict on a single row mutation.
type RowResult struct {
	Status  RowStatus
	Message string
}

// RemoteAPI is the batch mutation surface of the remote data-table service.
// Both calls return exactly one RowResult per submitted row, in order.
type RemoteAPI interface {
	BatchUpdate(ctx context.Context, table TableHandle, rows []DesiredRow, tokens TokenSet) ([]RowResult, error)
	BatchCreate(ctx context.Context, table TableHandle, rows []DesiredRow, tokens TokenSet) ([]RowResult, error)
}

// TokenFetcher retrieves the current lock token for a scope from the remote
// service. It is never called for lock level NONE.
type TokenFetcher interface {
	FetchToken(ctx context.Context, table TableHandle, level LockLevel, scope ScopeKey) (LockToken, error)
}

// Provisioner creates tables and attribute schemas ahead of reconciliation.
// It is an external collaborator; the engine itself only needs the resulting
// TableHandle.
type Provisioner interface {
	EnsureTable(ctx context.Context, spec TableSpec) (TableHandle, error)
	EnsureAttributes(ctx context.Context, table TableHandle, attrs []AttributeSpec) error
}
