/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package notify tells the user about calls that were rejected without
// ringing because no capture device could be used.
package notify

import (
	"fmt"

	"github.com/automat-berlin/afone/calling"
	"github.com/rs/zerolog"
)

// Category groups rejected-call notifications.
const Category = "berlin.automat.localnotification.category.rejected.call"

// RejectedBody is the body of every rejected-call notification.
const RejectedBody = "Due to missing microphone and camera permissions, the call was rejected automatically."

// Notification is a local notification about a call.
type Notification struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Caller   string `json:"caller"`
}

// RejectedCall builds the notification for a call rejected for missing
// permissions. The identifier is the call token.
func RejectedCall(call *calling.Call) Notification {
	caller := call.GetCaller()
	return Notification{
		ID:       call.GetToken().String(),
		Category: Category,
		Title:    fmt.Sprintf("%s tried to reach you", caller),
		Body:     RejectedBody,
		Caller:   caller,
	}
}

// LogNotifier writes notifications as structured log records.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier writing to logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyRejectedCall(call *calling.Call) {
	note := RejectedCall(call)
	n.logger.Info().
		Str("id", note.ID).
		Str("category", note.Category).
		Str("caller", note.Caller).
		Str("title", note.Title).
		Msg(note.Body)
}
