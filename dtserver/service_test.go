package dtserver

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
)

// newTestService connects to the Postgres named by DATATABLES_TEST_PG_URL.
// Tests that need a database are skipped when the variable is unset.
func newTestService(t *testing.T) *DataTableService {
	t.Helper()

	pgURL := os.Getenv("DATATABLES_TEST_PG_URL")
	if pgURL == "" {
		t.Skip("DATATABLES_TEST_PG_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, pgURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	service, err := NewDataTableService(pool, &ServiceConfig{
		InstanceID: "test-instance-" + t.Name(),
		AppName:    "dtserver-test",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })

	return service
}

func createTestTable(t *testing.T, service *DataTableService, lockLevel datatable.LockLevel) string {
	t.Helper()

	ctx := context.Background()
	table, err := service.CreateTable(ctx, &dtapi.CreateTableRequest{
		Name:           "test_" + t.Name(),
		TimeZone:       "US/Eastern",
		ValueLockLevel: string(lockLevel),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.DeleteTable(ctx, table.ID) })

	for _, attr := range []dtapi.CreateAttributeRequest{
		{Name: "queue", ValueType: "TEXT", Primary: true},
		{Name: "open", ValueType: "BOOLEAN"},
		{Name: "capacity", ValueType: "NUMBER"},
	} {
		_, err := service.CreateAttribute(ctx, table.ID, &attr)
		require.NoError(t, err)
	}
	return table.ID
}

func mutationRow(queue string, attrs ...dtapi.FieldValueWire) dtapi.RowMutationWire {
	return dtapi.RowMutationWire{
		PrimaryValues: []dtapi.FieldValueWire{{AttributeName: "queue", Value: queue}},
		Attributes:    attrs,
	}
}

func TestServiceProvisioning(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tableID := createTestTable(t, service, datatable.LockLevelNone)

	tables, err := service.ListTables(ctx)
	require.NoError(t, err)
	found := false
	for _, tbl := range tables.Tables {
		if tbl.ID == tableID {
			found = true
			require.Equal(t, "US/Eastern", tbl.TimeZone)
			require.Equal(t, "NONE", tbl.ValueLockLevel)
		}
	}
	require.True(t, found, "created table should be listed")

	attrs, err := service.ListAttributes(ctx, tableID)
	require.NoError(t, err)
	require.Len(t, attrs.Attributes, 3)
	require.Equal(t, "queue", attrs.Attributes[0].Name)
	require.True(t, attrs.Attributes[0].Primary)
	require.Equal(t, 0, attrs.Attributes[0].Position)
	require.Equal(t, 2, attrs.Attributes[2].Position)

	_, err = service.CreateAttribute(ctx, tableID, &dtapi.CreateAttributeRequest{
		Name: "queue", ValueType: "TEXT",
	})
	require.ErrorIs(t, err, ErrDuplicateAttribute)
}

func TestServiceBatchCreateThenUpdate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tableID := createTestTable(t, service, datatable.LockLevelNone)

	created, err := service.BatchCreate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{
			mutationRow("sales", dtapi.FieldValueWire{AttributeName: "open", Value: "true"}),
			mutationRow("support", dtapi.FieldValueWire{AttributeName: "capacity", Value: "10"}),
		},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusOK, created.Results[0].Status)
	require.Equal(t, dtapi.StatusOK, created.Results[1].Status)

	// Updating an existing row succeeds, a missing row reports not_found.
	updated, err := service.BatchUpdate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{
			mutationRow("sales", dtapi.FieldValueWire{AttributeName: "open", Value: "false"}),
			mutationRow("ghost", dtapi.FieldValueWire{AttributeName: "open", Value: "true"}),
		},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusOK, updated.Results[0].Status)
	require.Equal(t, dtapi.StatusNotFound, updated.Results[1].Status)

	// Re-creating an existing row is a terminal validation error.
	recreated, err := service.BatchCreate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{mutationRow("sales")},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusValidationError, recreated.Results[0].Status)
	require.Contains(t, recreated.Results[0].Message, "already exists")

	values, err := service.ListValues(ctx, tableID, 100)
	require.NoError(t, err)
	require.Len(t, values.Values, 2)
	require.Equal(t, "sales", values.Values[0].PrimaryValues[0].Value)
	require.Equal(t, "false", values.Values[0].Attributes[0].Value)
}

func TestServiceLockVersionConflicts(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tableID := createTestTable(t, service, datatable.LockLevelDataTable)

	version, err := service.GetLockVersion(ctx, tableID, datatable.LockLevelDataTable, "")
	require.NoError(t, err)
	require.Equal(t, "0", version.LockVersion)

	// Writes with the current token succeed and bump the version once per batch.
	created, err := service.BatchCreate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{
			mutationRow("sales", dtapi.FieldValueWire{AttributeName: "open", Value: "true"}),
			mutationRow("support", dtapi.FieldValueWire{AttributeName: "open", Value: "true"}),
		},
		LockVersions: map[string]string{"": version.LockVersion},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusOK, created.Results[0].Status)
	require.Equal(t, dtapi.StatusOK, created.Results[1].Status)

	bumped, err := service.GetLockVersion(ctx, tableID, datatable.LockLevelDataTable, "")
	require.NoError(t, err)
	require.Equal(t, "1", bumped.LockVersion)

	// A stale token conflicts without writing anything.
	stale, err := service.BatchUpdate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values:       []dtapi.RowMutationWire{mutationRow("sales", dtapi.FieldValueWire{AttributeName: "open", Value: "false"})},
		LockVersions: map[string]string{"": "0"},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusConflict, stale.Results[0].Status)

	unchanged, err := service.GetLockVersion(ctx, tableID, datatable.LockLevelDataTable, "")
	require.NoError(t, err)
	require.Equal(t, "1", unchanged.LockVersion)

	// A missing token also conflicts.
	missing, err := service.BatchUpdate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{mutationRow("sales", dtapi.FieldValueWire{AttributeName: "open", Value: "false"})},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusConflict, missing.Results[0].Status)
}

func TestServicePrimaryValueLockScopes(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tableID := createTestTable(t, service, datatable.LockLevelPrimaryValue)

	created, err := service.BatchCreate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{
			mutationRow("sales", dtapi.FieldValueWire{AttributeName: "open", Value: "true"}),
		},
		LockVersions: map[string]string{"sales": "0"},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusOK, created.Results[0].Status)

	version, err := service.GetLockVersion(ctx, tableID, datatable.LockLevelPrimaryValue, "sales")
	require.NoError(t, err)
	require.Equal(t, "1", version.LockVersion)

	// Other rows keep their own scope versions.
	other, err := service.GetLockVersion(ctx, tableID, datatable.LockLevelPrimaryValue, "support")
	require.NoError(t, err)
	require.Equal(t, "0", other.LockVersion)

	updated, err := service.BatchUpdate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values:       []dtapi.RowMutationWire{mutationRow("sales", dtapi.FieldValueWire{AttributeName: "capacity", Value: "9"})},
		LockVersions: map[string]string{"sales": version.LockVersion},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusOK, updated.Results[0].Status)
}

func TestServiceRejectsOversizedBatch(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tableID := createTestTable(t, service, datatable.LockLevelNone)

	rows := make([]dtapi.RowMutationWire, datatable.MaxBatchSize+1)
	for i := range rows {
		rows[i] = mutationRow("q" + strconv.Itoa(i))
	}
	_, err := service.BatchCreate(ctx, tableID, &dtapi.BatchValuesRequest{Values: rows})
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestServiceBatchValidationDoesNotWrite(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tableID := createTestTable(t, service, datatable.LockLevelNone)

	resp, err := service.BatchCreate(ctx, tableID, &dtapi.BatchValuesRequest{
		Values: []dtapi.RowMutationWire{
			mutationRow("good", dtapi.FieldValueWire{AttributeName: "open", Value: "true"}),
			mutationRow("bad", dtapi.FieldValueWire{AttributeName: "capacity", Value: "not-a-number"}),
		},
	})
	require.NoError(t, err)
	require.Equal(t, dtapi.StatusOK, resp.Results[0].Status)
	require.Equal(t, dtapi.StatusValidationError, resp.Results[1].Status)

	values, err := service.ListValues(ctx, tableID, 100)
	require.NoError(t, err)
	require.Len(t, values.Values, 1)
	require.Equal(t, "good", values.Values[0].PrimaryValues[0].Value)
}
