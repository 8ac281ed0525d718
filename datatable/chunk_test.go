package datatable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func rowsNamed(n int) []DesiredRow {
	rows := make([]DesiredRow, n)
	for i := range rows {
		rows[i] = DesiredRow{
			PrimaryValues: []FieldValue{{Attribute: "id", Value: TextValue(fmt.Sprintf("row-%d", i))}},
		}
	}
	return rows
}

func TestChunkPartitionsInput(t *testing.T) {
	cases := []struct {
		rows, size int
		batches    []int
	}{
		{0, 5, nil},
		{1, 5, []int{1}},
		{5, 5, []int{5}},
		{6, 5, []int{5, 1}},
		{12, 5, []int{5, 5, 2}},
		{3, 1, []int{1, 1, 1}},
	}

	for _, tc := range cases {
		input := rowsNamed(tc.rows)
		var sizes []int
		var flattened []DesiredRow
		for batch := range Chunk(input, tc.size) {
			sizes = append(sizes, len(batch))
			flattened = append(flattened, batch...)
		}
		require.Equal(t, tc.batches, sizes, "rows=%d size=%d", tc.rows, tc.size)
		// No loss, no duplication, order preserved.
		require.Equal(t, input, flattened)
	}
}

func TestChunkStopsWhenYieldReturnsFalse(t *testing.T) {
	count := 0
	for range Chunk(rowsNamed(10), 2) {
		count++
		if count == 2 {
			break
		}
	}
	require.Equal(t, 2, count)
}

func TestChunkPanicsOnInvalidSize(t *testing.T) {
	require.PanicsWithValue(t, "datatable: chunk size 0 is less than 1", func() {
		Chunk(rowsNamed(3), 0)
	})
	require.PanicsWithValue(t, "datatable: chunk size -1 is less than 1", func() {
		Chunk(rowsNamed(3), -1)
	})
}

func TestValidateBatchSize(t *testing.T) {
	require.NoError(t, ValidateBatchSize(1))
	require.NoError(t, ValidateBatchSize(MaxBatchSize))
	require.ErrorIs(t, ValidateBatchSize(0), ErrInvalidBatchSize)
	require.ErrorIs(t, ValidateBatchSize(-3), ErrInvalidBatchSize)
	require.ErrorIs(t, ValidateBatchSize(MaxBatchSize+1), ErrInvalidBatchSize)
}
