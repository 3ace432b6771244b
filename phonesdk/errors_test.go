/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package phonesdk

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *ActionError
		contains []string
	}{
		{
			name:     "With description",
			err:      &ActionError{Code: 486, Description: "busy here"},
			contains: []string{"486", "busy here"},
		},
		{
			name:     "Without description",
			err:      &ActionError{Code: 500},
			contains: []string{"500"},
		},
		{
			name:     "With wrapped error",
			err:      &ActionError{Code: 1, Description: "x", Err: errors.New("transport closed")},
			contains: []string{"transport closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Expected error message to contain %q, got %q", s, msg)
				}
			}
		})
	}
}

func TestActionError_ErrorsAs(t *testing.T) {
	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("hold: %w", &ActionError{Code: 408, Description: "timeout"})

		var actionErr *ActionError
		if !errors.As(err, &actionErr) {
			t.Fatal("Expected errors.As to find ActionError")
		}
		if actionErr.Code != 408 {
			t.Errorf("Expected code 408, got %d", actionErr.Code)
		}
		if !IsActionError(err) {
			t.Error("Expected IsActionError to be true")
		}
		if ActionCode(err) != 408 {
			t.Errorf("Expected ActionCode 408, got %d", ActionCode(err))
		}
	})

	t.Run("unwraps cause", func(t *testing.T) {
		cause := errors.New("unknown call")
		err := &ActionError{Code: 2, Description: "report failed", Err: cause}
		if !errors.Is(err, cause) {
			t.Error("Expected errors.Is to find the wrapped cause")
		}
	})

	t.Run("plain error has no code", func(t *testing.T) {
		if IsActionError(errors.New("x")) {
			t.Error("Expected IsActionError to be false")
		}
		if ActionCode(nil) != 0 {
			t.Error("Expected ActionCode(nil) to be 0")
		}
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	var logger Logger = NewLogger(&buf)
	logger.Printf("call %d ended", 7)
	if !strings.Contains(buf.String(), "call 7 ended") {
		t.Errorf("Expected log output to contain message, got %q", buf.String())
	}

	if OrDefault(nil) == nil {
		t.Error("Expected OrDefault(nil) to return a logger")
	}
	NopLogger{}.Printf("ignored")
}
