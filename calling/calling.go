/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calling provides the call lifecycle core of the softphone.
// It includes the Call state machine, the Orchestrator that mediates between
// a Call and the bound SignalingAdapter, and the value objects exchanged
// with adapters (codecs, SRTP options, credentials).
package calling

import (
	"github.com/automat-berlin/afone/phonesdk"
)

// BusyCode is the response code sent when a call is rejected.
const BusyCode = 486

// Config holds configuration for the Orchestrator and the calls it creates
type Config struct {
	// Logger receives orchestrator and call diagnostics. If nil, the
	// phonesdk default logger is used.
	Logger phonesdk.Logger

	// Clock drives the call duration timer. If nil, SystemClock is used.
	Clock Clock

	// RejectCode is the response code used by Call.Reject (default: BusyCode)
	RejectCode int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Logger:     phonesdk.DefaultLogger(),
		Clock:      SystemClock{},
		RejectCode: BusyCode,
	}
}
