// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package dtserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iamankitjain/aj-amazon-connect-datatables/datatable"
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
	"github.com/iamankitjain/aj-amazon-connect-datatables/internal/auth"
)

// HTTPHandlers exposes the data-table service over the /v1 REST API.
type HTTPHandlers struct {
	service *DataTableService
	logger  *slog.Logger
}

// NewHTTPHandlers creates handlers for the given service.
func NewHTTPHandlers(service *DataTableService, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{
		service: service,
		logger:  logger,
	}
}

// Register wires all routes onto mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tables", h.HandleListTables)
	mux.HandleFunc("POST /v1/tables", h.HandleCreateTable)
	mux.HandleFunc("DELETE /v1/tables/{tableID}", h.HandleDeleteTable)
	mux.HandleFunc("GET /v1/tables/{tableID}/attributes", h.HandleListAttributes)
	mux.HandleFunc("POST /v1/tables/{tableID}/attributes", h.HandleCreateAttribute)
	mux.HandleFunc("GET /v1/tables/{tableID}/lock-version", h.HandleGetLockVersion)
	mux.HandleFunc("GET /v1/tables/{tableID}/values", h.HandleListValues)
	mux.HandleFunc("POST /v1/tables/{tableID}/values/batch-update", h.HandleBatchUpdate)
	mux.HandleFunc("POST /v1/tables/{tableID}/values/batch-create", h.HandleBatchCreate)
}

// HandleCreateTable provisions a new table.
func (h *HTTPHandlers) HandleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req dtapi.CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse create table request")
		return
	}

	resp, err := h.service.CreateTable(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, "create_table_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleListTables lists the instance's tables.
func (h *HTTPHandlers) HandleListTables(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListTables(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list_tables_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleDeleteTable removes a table.
func (h *HTTPHandlers) HandleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTable(r.Context(), r.PathValue("tableID")); err != nil {
		h.writeServiceError(w, r, "delete_table_failed", err)
		return
	}
	h.writeJSON(w, map[string]bool{"deleted": true})
}

// HandleCreateAttribute appends an attribute definition.
func (h *HTTPHandlers) HandleCreateAttribute(w http.ResponseWriter, r *http.Request) {
	var req dtapi.CreateAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse create attribute request")
		return
	}

	resp, err := h.service.CreateAttribute(r.Context(), r.PathValue("tableID"), &req)
	if err != nil {
		h.writeServiceError(w, r, "create_attribute_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleListAttributes lists a table's attributes.
func (h *HTTPHandlers) HandleListAttributes(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListAttributes(r.Context(), r.PathValue("tableID"))
	if err != nil {
		h.writeServiceError(w, r, "list_attributes_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleGetLockVersion returns the lock version for one scope.
func (h *HTTPHandlers) HandleGetLockVersion(w http.ResponseWriter, r *http.Request) {
	level := datatable.LockLevel(r.URL.Query().Get("level"))
	if !level.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "level must be a known lock level")
		return
	}
	scope := r.URL.Query().Get("scope")

	resp, err := h.service.GetLockVersion(r.Context(), r.PathValue("tableID"), level, scope)
	if err != nil {
		h.writeServiceError(w, r, "get_lock_version_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleListValues returns stored rows for verification.
func (h *HTTPHandlers) HandleListValues(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		if parsedLimit < 1 || parsedLimit > 1000 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 1000")
			return
		}
		limit = parsedLimit
	}

	resp, err := h.service.ListValues(r.Context(), r.PathValue("tableID"), limit)
	if err != nil {
		h.writeServiceError(w, r, "list_values_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// HandleBatchUpdate applies a batch of value updates to existing rows.
func (h *HTTPHandlers) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, h.service.BatchUpdate)
}

// HandleBatchCreate inserts a batch of new rows.
func (h *HTTPHandlers) HandleBatchCreate(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, h.service.BatchCreate)
}

func (h *HTTPHandlers) handleBatch(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tableID string, req *dtapi.BatchValuesRequest) (*dtapi.BatchValuesResponse, error)) {
	var req dtapi.BatchValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse batch request")
		return
	}

	resp, err := apply(r.Context(), r.PathValue("tableID"), &req)
	if err != nil {
		h.writeServiceError(w, r, "batch_failed", err)
		return
	}
	h.writeJSON(w, resp)
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *HTTPHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, errorCode string, err error) {
	operator, _ := auth.GetOperatorID(r.Context())
	instance, _ := auth.GetInstanceID(r.Context())
	switch {
	case errors.Is(err, ErrTableNotFound):
		h.writeError(w, http.StatusNotFound, "table_not_found", err.Error())
	case errors.Is(err, ErrDuplicateTable), errors.Is(err, ErrDuplicateAttribute):
		h.writeError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, ErrBatchTooLarge):
		h.writeError(w, http.StatusBadRequest, "batch_too_large", err.Error())
	case errors.Is(err, datatable.ErrUnknownLockLevel):
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error("Request failed", "error", err, "operator", operator, "instance", instance, "path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, errorCode, err.Error())
	}
}

// writeJSON writes a standardized success response
func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := dtapi.ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
