// Copyright 2025 Ankit Jain
// SPDX-License-Identifier: Apache-2.0

package dtserver

import (
	"github.com/iamankitjain/aj-amazon-connect-datatables/dtapi"
)

func statusOK() dtapi.RowResultWire {
	return dtapi.RowResultWire{Status: dtapi.StatusOK}
}

func statusNotFound() dtapi.RowResultWire {
	return dtapi.RowResultWire{Status: dtapi.StatusNotFound}
}

func statusValidationError(err error) dtapi.RowResultWire {
	return dtapi.RowResultWire{Status: dtapi.StatusValidationError, Message: err.Error()}
}

func statusConflict(message string) dtapi.RowResultWire {
	return dtapi.RowResultWire{Status: dtapi.StatusConflict, Message: message}
}
