// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package datatable implements the reconciliation engine that turns a
// declared set of data-table rows into a minimal sequence of remote batch
// mutations, using an update-first upsert protocol with optimistic
// lock-version conflict retry.
//
// The engine is a protocol client: it talks to the remote service only
// through the RemoteAPI and TokenFetcher interfaces and defines no wire
// format of its own. Table and attribute provisioning, configuration
// loading, and result persistence are external collaborators.
package datatable
