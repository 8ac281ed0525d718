// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import (
	"fmt"
	"iter"
)

// MaxBatchSize is the remote service's ceiling on rows per batch call.
const MaxBatchSize = 25

// ValidateBatchSize checks a configured batch size against the service
// ceiling. A violation is a configuration error, never retried.
func ValidateBatchSize(size int) error {
	if size < 1 || size > MaxBatchSize {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidBatchSize, size, MaxBatchSize)
	}
	return nil
}

// Chunk lazily yields batches of at most size rows, preserving input order.
// Every input row appears in exactly one batch. The yielded slices alias the
// input and must not be mutated. Chunk panics if size is less than 1;
// callers validate configured sizes with ValidateBatchSize first.
func Chunk(rows []DesiredRow, size int) iter.Seq[[]DesiredRow] {
	return chunkSlice(rows, size)
}

func chunkSlice[T any](items []T, size int) iter.Seq[[]T] {
	if size < 1 {
		panic(fmt.Sprintf("datatable: chunk size %d is less than 1", size))
	}
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := start + size
			if end > len(items) {
				end = len(items)
			}
			if !yield(items[start:end]) {
				return
			}
		}
	}
}
