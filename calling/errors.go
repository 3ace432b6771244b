/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"errors"

	"github.com/automat-berlin/afone/phonesdk"
)

var (
	// ErrSessionMissing is returned by call-control verbs when the call has
	// no valid session handle.
	ErrSessionMissing = errors.New("call session is missing")

	// ErrAdapterAbsent is reported when no signaling adapter is bound.
	ErrAdapterAbsent = errors.New("no signaling adapter bound")

	// ErrVideoUnsupported is returned by video controls when the bound
	// adapter has no video capability.
	ErrVideoUnsupported = errors.New("signaling adapter does not support video")
)

// ActionFailedError is returned when the adapter performed a call-control
// verb and reported a failure.
type ActionFailedError struct {
	*phonesdk.ActionError
}

// Unwrap returns the underlying ActionError for errors.As traversal.
func (e *ActionFailedError) Unwrap() error { return e.ActionError }

// NewActionFailed creates an ActionFailedError with an adapter-specific code
// and description.
func NewActionFailed(code int, description string) error {
	return &ActionFailedError{ActionError: &phonesdk.ActionError{Code: code, Description: description}}
}
