/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package phonesdk

import (
	"errors"
	"fmt"
)

// ActionError is the base error type for a call action that was attempted
// and failed. It carries the code and description reported by whichever
// collaborator performed the action. Specific sub-types in the calling and
// telephony packages embed this struct, so consumers can use
// errors.As(err, &actionErr) regardless of the source.
type ActionError struct {
	// Code is the collaborator-specific failure code (e.g. a SIP status).
	Code int

	// Description is the human readable failure reason.
	Description string

	// Err is an optional wrapped error for errors.Unwrap support.
	Err error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	msg := fmt.Sprintf("action failed: %d", e.Code)
	if e.Description != "" {
		msg += " - " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error, if any.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsActionError reports whether err is, or wraps, an ActionError.
func IsActionError(err error) bool {
	var actionErr *ActionError
	return errors.As(err, &actionErr)
}

// ActionCode extracts the code from an ActionError chain, or 0.
func ActionCode(err error) int {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Code
	}
	return 0
}
