// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

import "errors"

// Configuration error sentinels. These abort a reconciliation run before
// any remote call is made; everything else is recorded per row.
var (
	ErrInvalidBatchSize   = errors.New("invalid batch size")
	ErrPrimaryKeyMismatch = errors.New("primary key mismatch")
	ErrUnknownLockLevel   = errors.New("unknown lock level")
)
