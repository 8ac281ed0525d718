package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndListRuns(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := &Run{
		InstanceID: "instance-1",
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
		Tables: []TableRecord{
			{Name: "hours_of_operation", Status: "completed", Updated: 10, Created: 2},
			{Name: "customer_types", Status: "failed", Error: "create table failed", Failed: 1},
		},
	}
	require.NoError(t, j.RecordRun(ctx, first))
	require.NotEmpty(t, first.ID, "RecordRun should assign an ID")

	second := &Run{
		InstanceID: "instance-1",
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour + time.Second),
		Tables:     []TableRecord{{Name: "hours_of_operation", Status: "completed", Updated: 12}},
	}
	require.NoError(t, j.RecordRun(ctx, second))

	runs, err := j.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Most recent first.
	require.Equal(t, second.ID, runs[0].ID)
	require.Equal(t, first.ID, runs[1].ID)

	require.Len(t, runs[1].Tables, 2)
	// Tables come back sorted by name.
	require.Equal(t, "customer_types", runs[1].Tables[0].Name)
	require.Equal(t, "create table failed", runs[1].Tables[0].Error)
	require.Equal(t, "hours_of_operation", runs[1].Tables[1].Name)
	require.Equal(t, 10, runs[1].Tables[1].Updated)
	require.Equal(t, 2, runs[1].Tables[1].Created)
}

func TestListRunsLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := &Run{
			InstanceID: "instance-1",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		require.NoError(t, j.RecordRun(ctx, run))
	}

	runs, err := j.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.True(t, runs[0].StartedAt.After(runs[2].StartedAt))
}

func TestRecordRunDuplicateID(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	run := &Run{
		ID:         "run-1",
		InstanceID: "instance-1",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}
	require.NoError(t, j.RecordRun(ctx, run))
	require.Error(t, j.RecordRun(ctx, run))
}
