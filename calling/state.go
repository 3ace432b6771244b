/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

// CallState represents the state of a call in the state machine
type CallState int

const (
	CallStateUnknown CallState = iota
	CallStateInitialized
	CallStateDialing
	CallStateRinging
	CallStateAnswering
	CallStateTalking
	CallStateHolding
	CallStateTerminated
)

var callStateNames = [...]string{
	CallStateUnknown:     "unknown",
	CallStateInitialized: "initialized",
	CallStateDialing:     "dialing",
	CallStateRinging:     "ringing",
	CallStateAnswering:   "answering",
	CallStateTalking:     "talking",
	CallStateHolding:     "holding",
	CallStateTerminated:  "terminated",
}

// String returns the lowercase state name.
func (s CallState) String() string {
	if s < 0 || int(s) >= len(callStateNames) {
		return "invalid"
	}
	return callStateNames[s]
}

// IsTerminal reports whether no transition may leave s.
func (s CallState) IsTerminal() bool {
	return s == CallStateTerminated
}
