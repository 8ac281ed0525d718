// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package datatable

// Outcome classifies what happened to one desired row.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeCreated Outcome = "created"
	OutcomeFailed  Outcome = "failed"
)

// RowOutcome is the final per-row result of a reconciliation run. Cause is
// set only for failed rows.
type RowOutcome struct {
	Row     DesiredRow
	Outcome Outcome
	Cause   string
}

// Summary aggregates every row outcome across both phases of a run.
// Updated+Created+Failed always equals the input row count.
type Summary struct {
	Updated  int
	Created  int
	Failed   int
	Failures []RowOutcome
}

// Total returns the number of rows accounted for.
func (s Summary) Total() int { return s.Updated + s.Created + s.Failed }

// BuildSummary folds per-row outcomes into aggregate counts and the failure
// list. Pure aggregation; no remote calls.
func BuildSummary(outcomes []RowOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Outcome {
		case OutcomeUpdated:
			s.Updated++
		case OutcomeCreated:
			s.Created++
		default:
			s.Failed++
			s.Failures = append(s.Failures, o)
		}
	}
	return s
}
