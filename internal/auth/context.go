// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated caller identity through request
// contexts.
package auth

import (
	"context"
)

type contextKey string

const (
	operatorIDKey contextKey = "operator_id"
	instanceIDKey contextKey = "instance_id"
)

// SetOperatorID sets the operator ID in the context
func SetOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorIDKey, operatorID)
}

// GetOperatorID retrieves the operator ID from the context
func GetOperatorID(ctx context.Context) (string, bool) {
	operatorID, ok := ctx.Value(operatorIDKey).(string)
	return operatorID, ok
}

// SetInstanceID sets the instance ID in the context
func SetInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, instanceIDKey, instanceID)
}

// GetInstanceID retrieves the instance ID from the context
func GetInstanceID(ctx context.Context) (string, bool) {
	instanceID, ok := ctx.Value(instanceIDKey).(string)
	return instanceID, ok
}

// SetAuthContext sets both the operator and instance ID in the context
func SetAuthContext(ctx context.Context, operatorID, instanceID string) context.Context {
	ctx = SetOperatorID(ctx, operatorID)
	ctx = SetInstanceID(ctx, instanceID)
	return ctx
}
