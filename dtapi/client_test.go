package dtapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, v any) *http.Response {
	b, err := json.Marshal(v)
	if err != nil {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(bytes.NewReader([]byte(err.Error()))),
			Header:     make(http.Header),
		}
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(b)),
		Header:     h,
	}
}

func newTestClient(rt roundTripFunc) *Client {
	token := func(ctx context.Context) (string, error) { return "test-token", nil }
	c := NewClient("http://example.com", token, nil)
	c.HTTP = &http.Client{Transport: rt}
	return c
}

func testHandle() datatable.TableHandle {
	return datatable.TableHandle{
		ID:           "tbl-1",
		Name:         "hours_of_operation",
		LockLevel:    datatable.LockLevelDataTable,
		PrimaryOrder: []string{"queue"},
	}
}

func TestBatchUpdateRequestShape(t *testing.T) {
	var captured BatchValuesRequest
	var gotPath, gotAuth string
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			return nil, err
		}
		resp := BatchValuesResponse{Results: []RowResultWire{
			{Status: StatusOK},
			{Status: StatusNotFound},
		}}
		return jsonResponse(http.StatusOK, resp), nil
	})

	rows := []datatable.DesiredRow{
		{
			PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("sales")}},
			Attributes: []datatable.FieldValue{
				{Attribute: "open", Value: datatable.BoolValue(true)},
				{Attribute: "aliases", Value: datatable.TextListValue("a", "b")},
			},
		},
		{
			PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("support")}},
		},
	}
	tokens := datatable.TokenSet{datatable.TableScope: "7"}

	results, err := c.BatchUpdate(context.Background(), testHandle(), rows, tokens)
	require.NoError(t, err)
	require.Equal(t, "/v1/tables/tbl-1/values/batch-update", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)

	require.Len(t, captured.Values, 2)
	require.Equal(t, "queue", captured.Values[0].PrimaryValues[0].AttributeName)
	require.Equal(t, "sales", captured.Values[0].PrimaryValues[0].Value)
	require.Equal(t, "true", captured.Values[0].Attributes[0].Value)
	require.JSONEq(t, `["a","b"]`, captured.Values[0].Attributes[1].Value)
	require.Equal(t, map[string]string{"": "7"}, captured.LockVersions)

	require.Equal(t, []datatable.RowResult{
		{Status: datatable.RowOK},
		{Status: datatable.RowNotFound},
	}, results)
}

func TestBatchCreateStatusMapping(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "/v1/tables/tbl-1/values/batch-create", r.URL.Path)
		resp := BatchValuesResponse{Results: []RowResultWire{
			{Status: StatusOK},
			{Status: StatusValidationError, Message: "value too long"},
			{Status: StatusConflict, Message: "stale lock version"},
		}}
		return jsonResponse(http.StatusOK, resp), nil
	})

	rows := []datatable.DesiredRow{
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("a")}}},
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("b")}}},
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("c")}}},
	}
	results, err := c.BatchCreate(context.Background(), testHandle(), rows, nil)
	require.NoError(t, err)
	require.Equal(t, datatable.RowOK, results[0].Status)
	require.Equal(t, datatable.RowValidationError, results[1].Status)
	require.Equal(t, "value too long", results[1].Message)
	require.Equal(t, datatable.RowConflict, results[2].Status)
}

func TestBatchUpdateResultCountMismatch(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, BatchValuesResponse{Results: []RowResultWire{{Status: StatusOK}}}), nil
	})
	rows := []datatable.DesiredRow{
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("a")}}},
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("b")}}},
	}
	_, err := c.BatchUpdate(context.Background(), testHandle(), rows, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 results for 2 rows")
}

func TestBatchUpdateUnknownStatus(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, BatchValuesResponse{Results: []RowResultWire{{Status: "exploded"}}}), nil
	})
	rows := []datatable.DesiredRow{
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("a")}}},
	}
	_, err := c.BatchUpdate(context.Background(), testHandle(), rows, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unrecognized row status")
}

func TestFetchToken(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "/v1/tables/tbl-1/lock-version", r.URL.Path)
		require.Equal(t, "PRIMARY_VALUE", r.URL.Query().Get("level"))
		require.Equal(t, "sales", r.URL.Query().Get("scope"))
		return jsonResponse(http.StatusOK, LockVersionResponse{LockVersion: "42"}), nil
	})

	tok, err := c.FetchToken(context.Background(), testHandle(), datatable.LockLevelPrimaryValue, datatable.ScopeKey("sales"))
	require.NoError(t, err)
	require.Equal(t, datatable.LockToken("42"), tok)
}

func TestEnsureTableFindsExisting(t *testing.T) {
	var createCalled bool
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tables":
			return jsonResponse(http.StatusOK, ListTablesResponse{Tables: []TableResponse{
				{ID: "tbl-9", Name: "other", ValueLockLevel: "NONE"},
				{ID: "tbl-1", Name: "hours_of_operation", ValueLockLevel: "DATA_TABLE"},
			}}), nil
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tables":
			createCalled = true
			return jsonResponse(http.StatusOK, TableResponse{ID: "tbl-new"}), nil
		}
		return nil, fmt.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
	})

	handle, err := c.EnsureTable(context.Background(), datatable.TableSpec{Name: "hours_of_operation"})
	require.NoError(t, err)
	require.False(t, createCalled)
	require.Equal(t, "tbl-1", handle.ID)
	require.Equal(t, datatable.LockLevelDataTable, handle.LockLevel)
}

func TestEnsureTableCreatesMissing(t *testing.T) {
	var createBody CreateTableRequest
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tables":
			return jsonResponse(http.StatusOK, ListTablesResponse{}), nil
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tables":
			if err := json.NewDecoder(r.Body).Decode(&createBody); err != nil {
				return nil, err
			}
			return jsonResponse(http.StatusOK, TableResponse{
				ID: "tbl-new", Name: createBody.Name, ValueLockLevel: createBody.ValueLockLevel,
			}), nil
		}
		return nil, fmt.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
	})

	spec := datatable.TableSpec{
		Name:      "routing_profiles",
		TimeZone:  "US/Eastern",
		LockLevel: datatable.LockLevelPrimaryValue,
	}
	handle, err := c.EnsureTable(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, "tbl-new", handle.ID)
	require.Equal(t, "routing_profiles", createBody.Name)
	require.Equal(t, "PRIMARY_VALUE", createBody.ValueLockLevel)
	require.Equal(t, "PUBLISHED", createBody.Status)
}

func TestEnsureAttributesCreatesOnlyMissing(t *testing.T) {
	var created []string
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tables/tbl-1/attributes":
			return jsonResponse(http.StatusOK, ListAttributesResponse{Attributes: []AttributeResponse{
				{Name: "queue", ValueType: "TEXT", Primary: true},
			}}), nil
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tables/tbl-1/attributes":
			var req CreateAttributeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, err
			}
			created = append(created, req.Name)
			return jsonResponse(http.StatusOK, AttributeResponse{Name: req.Name}), nil
		}
		return nil, fmt.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
	})

	attrs := []datatable.AttributeSpec{
		{Name: "queue", ValueType: datatable.KindText, Primary: true},
		{Name: "open", ValueType: datatable.KindBoolean},
		{Name: "capacity", ValueType: datatable.KindNumber},
	}
	err := c.EnsureAttributes(context.Background(), testHandle(), attrs)
	require.NoError(t, err)
	require.Equal(t, []string{"open", "capacity"}, created)
}

func TestServerErrorSurfaced(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, ErrorResponse{
			Error:   "batch_too_large",
			Message: "batch exceeds 25 rows",
		}), nil
	})
	rows := []datatable.DesiredRow{
		{PrimaryValues: []datatable.FieldValue{{Attribute: "queue", Value: datatable.TextValue("a")}}},
	}
	_, err := c.BatchUpdate(context.Background(), testHandle(), rows, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "batch_too_large")
	require.Contains(t, err.Error(), "batch exceeds 25 rows")
}
