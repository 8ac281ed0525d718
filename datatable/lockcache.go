// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import (
	"context"
	"fmt"
)

// LockCache tracks the current lock tokens for one table during a single
// reconciliation run. It exists purely to avoid redundant fetches between
// successive writes to the same scope; a detected conflict must always
// Invalidate before the next Get so no stale token survives a conflict.
//
// The cache is scoped to one run and discarded afterward. It is not safe
// for concurrent use.
type LockCache struct {
	table   TableHandle
	fetcher TokenFetcher
	tokens  map[ScopeKey]LockToken
	fetches int
}

// NewLockCache creates a cache for table backed by fetcher.
func NewLockCache(table TableHandle, fetcher TokenFetcher) *LockCache {
	return &LockCache{
		table:   table,
		fetcher: fetcher,
		tokens:  make(map[ScopeKey]LockToken),
	}
}

// Get returns the current token for scope, fetching on first access. For
// lock level NONE it always returns NoToken without touching the service.
// For DATA_TABLE level the scope key is ignored.
func (c *LockCache) Get(ctx context.Context, scope ScopeKey) (LockToken, error) {
	if c.table.LockLevel == LockLevelNone {
		return NoToken, nil
	}
	if c.table.LockLevel == LockLevelDataTable {
		scope = TableScope
	}
	if tok, ok := c.tokens[scope]; ok {
		return tok, nil
	}
	tok, err := c.fetcher.FetchToken(ctx, c.table, c.table.LockLevel, scope)
	if err != nil {
		return NoToken, fmt.Errorf("fetch lock token for scope %q: %w", scope, err)
	}
	c.tokens[scope] = tok
	c.fetches++
	return tok, nil
}

// Invalidate forces the next Get for scope to re-fetch.
func (c *LockCache) Invalidate(scope ScopeKey) {
	if c.table.LockLevel == LockLevelDataTable {
		scope = TableScope
	}
	delete(c.tokens, scope)
}

// Collect gathers the tokens for every scope the given rows touch.
func (c *LockCache) Collect(ctx context.Context, rows []DesiredRow) (TokenSet, error) {
	if c.table.LockLevel == LockLevelNone {
		return nil, nil
	}
	set := TokenSet{}
	for _, row := range rows {
		for _, scope := range ScopesForRow(c.table, row) {
			if _, ok := set[scope]; ok {
				continue
			}
			tok, err := c.Get(ctx, scope)
			if err != nil {
				return nil, err
			}
			set[scope] = tok
		}
	}
	return set, nil
}

// Fetches reports how many remote token fetches the cache has performed.
func (c *LockCache) Fetches() int { return c.fetches }
