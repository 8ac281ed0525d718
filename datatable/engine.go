// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config holds the engine tuning knobs. These are operational values, not
// part of the reconciliation contract, so they are configurable rather than
// hardcoded.
type Config struct {
	// BatchSize is the number of rows per remote batch call, 1..MaxBatchSize.
	BatchSize int
	// MaxAttempts bounds the total attempts per batch on concurrency
	// conflicts (first attempt included).
	MaxAttempts int
	// RetryDelay is the pause between conflict retries.
	RetryDelay time.Duration
	// RetryTransportErrors folds transport failures (timeouts, connectivity)
	// into the same attempt budget as conflicts. Off by default: a transport
	// error is reported as a per-row failure immediately.
	RetryTransportErrors bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   MaxBatchSize,
		MaxAttempts: 4,
		RetryDelay:  250 * time.Millisecond,
	}
}

// Reconciler drives the update-first upsert protocol: every desired row is
// first submitted as an update, and only rows the service reports as not
// found are resubmitted as creates. Validation failures are terminal and
// never escalate to the create phase.
type Reconciler struct {
	api     RemoteAPI
	fetcher TokenFetcher
	config  Config
	logger  *slog.Logger
}

// NewReconciler creates an engine over the given remote collaborators.
func NewReconciler(api RemoteAPI, fetcher TokenFetcher, config Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{api: api, fetcher: fetcher, config: config, logger: logger}
}

type phase int

const (
	phaseUpdate phase = iota
	phaseCreate
)

func (p phase) String() string {
	if p == phaseUpdate {
		return "update"
	}
	return "create"
}

// indexedRow ties a row to its position in the input so each row gets
// exactly one outcome even as batches are re-chunked across phases.
type indexedRow struct {
	idx int
	row DesiredRow
}

// Reconcile runs both phases against table and returns the summary. The
// summary is produced even when every row fails; a non-nil error is either
// a configuration error (nothing was dispatched, summary is nil) or the
// context's error after a cancellation at a batch boundary (rows never
// attempted are recorded as failed).
func (r *Reconciler) Reconcile(ctx context.Context, table TableHandle, rows []DesiredRow) (*Summary, error) {
	if err := ValidateBatchSize(r.config.BatchSize); err != nil {
		return nil, err
	}
	if !table.LockLevel.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLockLevel, table.LockLevel)
	}
	for i, row := range rows {
		if err := ValidateRow(table, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}

	cache := NewLockCache(table, r.fetcher)
	outcomes := make([]RowOutcome, len(rows))
	for i := range rows {
		outcomes[i].Row = rows[i]
	}

	indexed := make([]indexedRow, len(rows))
	for i, row := range rows {
		indexed[i] = indexedRow{idx: i, row: row}
	}

	r.logger.Info("Phase 1: updating existing rows",
		"table", table.Name, "rows", len(rows), "lock_level", string(table.LockLevel))

	var toCreate []indexedRow
	runErr := r.runPhase(ctx, phaseUpdate, table, cache, indexed, outcomes, &toCreate)

	if runErr == nil && len(toCreate) > 0 {
		r.logger.Info("Phase 2: creating new rows", "table", table.Name, "rows", len(toCreate))
		runErr = r.runPhase(ctx, phaseCreate, table, cache, toCreate, outcomes, nil)
	}

	// Rows never attempted (cancellation mid-run) still get an outcome.
	for i := range outcomes {
		if outcomes[i].Outcome == "" {
			cause := "reconciliation canceled"
			if runErr != nil {
				cause = fmt.Sprintf("reconciliation canceled: %v", runErr)
			}
			outcomes[i].Outcome = OutcomeFailed
			outcomes[i].Cause = cause
		}
	}

	summary := BuildSummary(outcomes)
	r.logger.Info("Reconciliation complete", "table", table.Name,
		"updated", summary.Updated, "created", summary.Created, "failed", summary.Failed,
		"lock_fetches", cache.Fetches())
	return &summary, runErr
}

// runPhase dispatches one phase batch by batch. Cancellation is honored
// only between batches; an in-flight batch completes or fails per row.
func (r *Reconciler) runPhase(ctx context.Context, ph phase, table TableHandle, cache *LockCache, items []indexedRow, outcomes []RowOutcome, toCreate *[]indexedRow) error {
	for batch := range chunkSlice(items, r.config.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runBatch(ctx, ph, table, cache, batch, outcomes, toCreate); err != nil {
			return err
		}
	}
	return nil
}

const causeRetriesExhausted = "concurrency conflict, retries exhausted"

// runBatch is the conflict retry manager: attempt the batch call, and on
// concurrency conflicts invalidate the affected scopes, re-fetch fresh
// tokens, and retry the still-unresolved rows up to the attempt bound.
// Validation errors are never retried; transport errors are retried only
// when configured. Returns a non-nil error only on context cancellation.
func (r *Reconciler) runBatch(ctx context.Context, ph phase, table TableHandle, cache *LockCache, batch []indexedRow, outcomes []RowOutcome, toCreate *[]indexedRow) error {
	record := func(ir indexedRow, o Outcome, cause string) {
		outcomes[ir.idx].Outcome = o
		outcomes[ir.idx].Cause = cause
	}
	failAll := func(pending []indexedRow, cause string) {
		for _, ir := range pending {
			record(ir, OutcomeFailed, cause)
		}
	}

	pending := batch
	for attempt := 1; ; attempt++ {
		tokens, err := cache.Collect(ctx, rowsOf(pending))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.config.RetryTransportErrors && attempt < r.config.MaxAttempts {
				r.logger.Warn("Lock token fetch failed, retrying", "phase", ph.String(), "attempt", attempt, "error", err)
				if serr := sleepWithContext(ctx, r.config.RetryDelay); serr != nil {
					return serr
				}
				continue
			}
			failAll(pending, fmt.Sprintf("lock token fetch failed: %v", err))
			return nil
		}

		var results []RowResult
		if ph == phaseUpdate {
			results, err = r.api.BatchUpdate(ctx, table, rowsOf(pending), tokens)
		} else {
			results, err = r.api.BatchCreate(ctx, table, rowsOf(pending), tokens)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.config.RetryTransportErrors && attempt < r.config.MaxAttempts {
				r.logger.Warn("Batch call failed, retrying", "phase", ph.String(), "attempt", attempt, "error", err)
				if serr := sleepWithContext(ctx, r.config.RetryDelay); serr != nil {
					return serr
				}
				continue
			}
			failAll(pending, fmt.Sprintf("batch %s failed: %v", ph.String(), err))
			return nil
		}
		if len(results) != len(pending) {
			failAll(pending, fmt.Sprintf("batch %s returned %d results for %d rows", ph.String(), len(results), len(pending)))
			return nil
		}

		var written, conflicted []indexedRow
		for i, res := range results {
			ir := pending[i]
			switch res.Status {
			case RowOK:
				written = append(written, ir)
				if ph == phaseUpdate {
					record(ir, OutcomeUpdated, "")
				} else {
					record(ir, OutcomeCreated, "")
				}
			case RowNotFound:
				if ph == phaseUpdate && toCreate != nil {
					*toCreate = append(*toCreate, ir)
				} else {
					record(ir, OutcomeFailed, nonEmpty(res.Message, "row not found"))
				}
			case RowValidationError:
				record(ir, OutcomeFailed, nonEmpty(res.Message, "validation error"))
			case RowConflict:
				conflicted = append(conflicted, ir)
			default:
				record(ir, OutcomeFailed, fmt.Sprintf("unrecognized row status %q", res.Status))
			}
		}

		// The service advances the version of every scope it wrote, so
		// cached tokens for those scopes are stale now. Invalidating them
		// makes the next batch refetch instead of burning a retry attempt.
		for _, ir := range written {
			for _, scope := range ScopesForRow(table, ir.row) {
				cache.Invalidate(scope)
			}
		}

		if len(conflicted) == 0 {
			return nil
		}
		if attempt >= r.config.MaxAttempts {
			r.logger.Warn("Conflict retries exhausted", "phase", ph.String(), "rows", len(conflicted), "attempts", attempt)
			failAll(conflicted, causeRetriesExhausted)
			return nil
		}

		for _, ir := range conflicted {
			for _, scope := range ScopesForRow(table, ir.row) {
				cache.Invalidate(scope)
			}
		}
		r.logger.Info("Retrying concurrency conflicts",
			"phase", ph.String(), "rows", len(conflicted), "attempt", attempt+1)
		if serr := sleepWithContext(ctx, r.config.RetryDelay); serr != nil {
			return serr
		}
		pending = conflicted
	}
}

func rowsOf(items []indexedRow) []DesiredRow {
	rows := make([]DesiredRow, len(items))
	for i, ir := range items {
		rows[i] = ir.row
	}
	return rows
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
