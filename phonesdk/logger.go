/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package phonesdk holds the pieces shared by every afone package: the
// logging contract and the base error types for failed call actions.
package phonesdk

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the interface for SDK logging. Any logger that implements Printf
// (such as the standard library's *log.Logger or a *zerolog.Logger) can be used.
type Logger interface {
	Printf(format string, v ...any)
}

// NewLogger returns a timestamped zerolog logger writing to w.
func NewLogger(w io.Writer) *zerolog.Logger {
	l := zerolog.New(w).With().Timestamp().Logger()
	return &l
}

// DefaultLogger returns the logger used when a Config leaves Logger nil.
func DefaultLogger() Logger {
	return NewLogger(os.Stderr)
}

// OrDefault returns l, or the default logger when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l
}

// NopLogger discards everything.
type NopLogger struct{}

// Printf implements Logger.
func (NopLogger) Printf(string, ...any) {}
