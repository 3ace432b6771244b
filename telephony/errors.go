/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package telephony

import (
	"errors"

	"github.com/automat-berlin/afone/phonesdk"
)

var (
	// ErrTokenMismatch fails an action whose token is not the active call's.
	ErrTokenMismatch = errors.New("action token does not match the active call")

	// ErrNoActiveCall is returned when an operation needs an active call.
	ErrNoActiveCall = errors.New("no active call")

	// ErrActionTimeout fails an action whose completion never arrived.
	ErrActionTimeout = errors.New("action timed out")

	// ErrStartCallFailed fails a start action when no call could be created.
	ErrStartCallFailed = errors.New("call could not be started")

	// ErrUnsupportedAction fails an action type the bridge does not handle.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrInternal fails an action whose handler panicked.
	ErrInternal = errors.New("internal error while performing action")

	// ErrStackInvalidated is returned by a Stack after Invalidate.
	ErrStackInvalidated = errors.New("telephony stack invalidated")

	// ErrUnknownCall is returned by a Stack for a token it does not know.
	ErrUnknownCall = errors.New("unknown call token")

	// ErrCallExists is returned by a Stack when a token is reported twice.
	ErrCallExists = errors.New("call already reported")
)

// Codes carried by BridgeError.
const (
	CodeMuteUnavailable = 1000
	CodeHoldUnavailable = 1001
)

// BridgeError is returned by the Trigger* helpers when the request cannot be
// made.
type BridgeError struct {
	*phonesdk.ActionError
}

// Unwrap returns the underlying ActionError for errors.As traversal.
func (e *BridgeError) Unwrap() error { return e.ActionError }

func newBridgeError(code int, err error) error {
	return &BridgeError{ActionError: &phonesdk.ActionError{Code: code, Description: err.Error(), Err: err}}
}
