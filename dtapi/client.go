// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package dtapi defines the data-table service wire protocol and the HTTP
// client used by the reconciliation engine and the deployment tooling.
package dtapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
)

// TokenFunc supplies the bearer token for each request.
type TokenFunc func(ctx context.Context) (string, error)

// Client talks to the data-table service. It implements
// datatable.RemoteAPI, datatable.TokenFetcher and datatable.Provisioner.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenFunc
	logger  *slog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, token TokenFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Token:   token,
		logger:  logger,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("get auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d (%s): %s", resp.StatusCode, errResp.Error, errResp.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListTables returns every table the instance hosts.
func (c *Client) ListTables(ctx context.Context) ([]TableResponse, error) {
	var list ListTablesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/tables", nil, &list); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return list.Tables, nil
}

// FindTable returns the table with the given name, or nil if absent.
func (c *Client) FindTable(ctx context.Context, name string) (*TableResponse, error) {
	tables, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i], nil
		}
	}
	return nil, nil
}

// CreateTable provisions a new table.
func (c *Client) CreateTable(ctx context.Context, spec datatable.TableSpec) (*TableResponse, error) {
	req := CreateTableRequest{
		Name:           spec.Name,
		Description:    spec.Description,
		TimeZone:       spec.TimeZone,
		ValueLockLevel: string(spec.LockLevel),
		Status:         "PUBLISHED",
		Tags:           spec.Tags,
	}
	var resp TableResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tables", req, &resp); err != nil {
		return nil, fmt.Errorf("create table %q: %w", spec.Name, err)
	}
	return &resp, nil
}

// EnsureTable finds or creates the table and returns its handle. The
// handle's PrimaryOrder is filled in by EnsureAttributes callers once the
// attribute schema is in place.
func (c *Client) EnsureTable(ctx context.Context, spec datatable.TableSpec) (datatable.TableHandle, error) {
	existing, err := c.FindTable(ctx, spec.Name)
	if err != nil {
		return datatable.TableHandle{}, err
	}
	if existing == nil {
		existing, err = c.CreateTable(ctx, spec)
		if err != nil {
			return datatable.TableHandle{}, err
		}
		c.logger.Info("Created data table", "name", spec.Name, "id", existing.ID)
	}
	return datatable.TableHandle{
		ID:        existing.ID,
		Name:      existing.Name,
		LockLevel: datatable.LockLevel(existing.ValueLockLevel),
	}, nil
}

// ListAttributes returns a table's attributes in declaration order.
func (c *Client) ListAttributes(ctx context.Context, tableID string) ([]AttributeResponse, error) {
	var resp ListAttributesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/tables/"+tableID+"/attributes", nil, &resp); err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	return resp.Attributes, nil
}

// EnsureAttributes creates each attribute that does not already exist by
// name. Existing attributes are left untouched.
func (c *Client) EnsureAttributes(ctx context.Context, table datatable.TableHandle, attrs []datatable.AttributeSpec) error {
	existing, err := c.ListAttributes(ctx, table.ID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, a := range existing {
		have[a.Name] = true
	}

	for _, attr := range attrs {
		if have[attr.Name] {
			continue
		}
		req := CreateAttributeRequest{
			Name:        attr.Name,
			ValueType:   string(attr.ValueType),
			Description: attr.Description,
			Primary:     attr.Primary,
			Validation:  attr.Validation,
		}
		if err := c.doJSON(ctx, http.MethodPost, "/v1/tables/"+table.ID+"/attributes", req, nil); err != nil {
			return fmt.Errorf("create attribute %q: %w", attr.Name, err)
		}
		c.logger.Debug("Created attribute", "table", table.Name, "attribute", attr.Name)
	}
	return nil
}

// DeleteTable removes a table and all of its values.
func (c *Client) DeleteTable(ctx context.Context, tableID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/tables/"+tableID, nil, nil); err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	return nil
}

// ListValues returns up to limit stored rows for verification.
func (c *Client) ListValues(ctx context.Context, tableID string, limit int) ([]RowWire, error) {
	path := fmt.Sprintf("/v1/tables/%s/values?limit=%d", tableID, limit)
	var resp ListValuesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	return resp.Values, nil
}

// BatchUpdate implements datatable.RemoteAPI.
func (c *Client) BatchUpdate(ctx context.Context, table datatable.TableHandle, rows []datatable.DesiredRow, tokens datatable.TokenSet) ([]datatable.RowResult, error) {
	return c.batchValues(ctx, table, rows, tokens, "batch-update")
}

// BatchCreate implements datatable.RemoteAPI.
func (c *Client) BatchCreate(ctx context.Context, table datatable.TableHandle, rows []datatable.DesiredRow, tokens datatable.TokenSet) ([]datatable.RowResult, error) {
	return c.batchValues(ctx, table, rows, tokens, "batch-create")
}

func (c *Client) batchValues(ctx context.Context, table datatable.TableHandle, rows []datatable.DesiredRow, tokens datatable.TokenSet, op string) ([]datatable.RowResult, error) {
	req := BatchValuesRequest{Values: make([]RowMutationWire, len(rows))}
	for i, row := range rows {
		wire, err := rowToWire(row)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		req.Values[i] = wire
	}
	if len(tokens) > 0 {
		req.LockVersions = make(map[string]string, len(tokens))
		for scope, tok := range tokens {
			req.LockVersions[string(scope)] = string(tok)
		}
	}

	var resp BatchValuesResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tables/"+table.ID+"/values/"+op, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(rows) {
		return nil, fmt.Errorf("%s returned %d results for %d rows", op, len(resp.Results), len(rows))
	}

	results := make([]datatable.RowResult, len(resp.Results))
	for i, r := range resp.Results {
		status, err := rowStatusFromWire(r.Status)
		if err != nil {
			return nil, err
		}
		results[i] = datatable.RowResult{Status: status, Message: r.Message}
	}
	return results, nil
}

// FetchToken implements datatable.TokenFetcher.
func (c *Client) FetchToken(ctx context.Context, table datatable.TableHandle, level datatable.LockLevel, scope datatable.ScopeKey) (datatable.LockToken, error) {
	path := fmt.Sprintf("/v1/tables/%s/lock-version?level=%s&scope=%s",
		table.ID, url.QueryEscape(string(level)), url.QueryEscape(string(scope)))
	var resp LockVersionResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return datatable.NoToken, err
	}
	return datatable.LockToken(resp.LockVersion), nil
}

func rowToWire(row datatable.DesiredRow) (RowMutationWire, error) {
	wire := RowMutationWire{
		PrimaryValues: make([]FieldValueWire, len(row.PrimaryValues)),
		Attributes:    make([]FieldValueWire, len(row.Attributes)),
	}
	for i, fv := range row.PrimaryValues {
		v, err := fv.Value.Wire()
		if err != nil {
			return wire, err
		}
		wire.PrimaryValues[i] = FieldValueWire{AttributeName: fv.Attribute, Value: v}
	}
	for i, fv := range row.Attributes {
		v, err := fv.Value.Wire()
		if err != nil {
			return wire, err
		}
		wire.Attributes[i] = FieldValueWire{AttributeName: fv.Attribute, Value: v}
	}
	return wire, nil
}

func rowStatusFromWire(s string) (datatable.RowStatus, error) {
	switch s {
	case StatusOK:
		return datatable.RowOK, nil
	case StatusNotFound:
		return datatable.RowNotFound, nil
	case StatusValidationError:
		return datatable.RowValidationError, nil
	case StatusConflict:
		return datatable.RowConflict, nil
	}
	return "", fmt.Errorf("unrecognized row status %q", s)
}
