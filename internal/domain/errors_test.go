// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "message only",
			err:      NewNotFoundError("meeting not found"),
			expected: "meeting not found",
		},
		{
			name:     "message with wrapped cause",
			err:      NewInternalError("marshal failed", errors.New("unexpected end of input")),
			expected: "marshal failed: unexpected end of input",
		},
		{
			name:     "message with joined causes",
			err:      NewUnavailableError("store unreachable", errors.New("dial timeout"), errors.New("no responders")),
			expected: "store unreachable: dial timeout\nno responders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("expected error message %q, got %q", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "validation error",
			err:      NewValidationError("start time required"),
			expected: ErrorTypeValidation,
		},
		{
			name:     "not found error",
			err:      NewNotFoundError("meeting not found"),
			expected: ErrorTypeNotFound,
		},
		{
			name:     "conflict error",
			err:      NewConflictError("day already reserved"),
			expected: ErrorTypeConflict,
		},
		{
			name:     "unauthorized error",
			err:      NewUnauthorizedError("caller is not a participant"),
			expected: ErrorTypeUnauthorized,
		},
		{
			name:     "unavailable error",
			err:      NewUnavailableError("store unreachable"),
			expected: ErrorTypeUnavailable,
		},
		{
			name:     "wrapped domain error",
			err:      fmt.Errorf("evaluating admission: %w", NewConflictError("day already reserved")),
			expected: ErrorTypeConflict,
		},
		{
			name:     "plain error falls back to internal",
			err:      errors.New("boom"),
			expected: ErrorTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorType(tt.err); got != tt.expected {
				t.Errorf("expected error type %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "explicit code",
			err:      NewConflictError("one call per day").WithCode(ErrorCodeDayConflict),
			expected: ErrorCodeDayConflict,
		},
		{
			name:     "explicit code through wrapping",
			err:      fmt.Errorf("create meeting: %w", NewValidationError("start outside window").WithCode(ErrorCodeTimeOutOfWindow)),
			expected: ErrorCodeTimeOutOfWindow,
		},
		{
			name:     "validation fallback",
			err:      NewValidationError("start time required"),
			expected: "validation_failed",
		},
		{
			name:     "not found fallback",
			err:      NewNotFoundError("meeting not found"),
			expected: "not_found",
		},
		{
			name:     "unauthorized fallback",
			err:      NewUnauthorizedError("caller is not a participant"),
			expected: ErrorCodeNotAuthorized,
		},
		{
			name:     "unavailable fallback",
			err:      NewUnavailableError("store unreachable"),
			expected: ErrorCodeServiceUnavailable,
		},
		{
			name:     "plain error falls back to internal code",
			err:      errors.New("boom"),
			expected: ErrorCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("expected error code %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestErrorDetails(t *testing.T) {
	err := NewConflictError("pair limit reached").
		WithCode(ErrorCodePairLimitReached).
		WithDetail("limit", "3").
		WithDetail("count", "3")

	details := GetErrorDetails(fmt.Errorf("create meeting: %w", err))
	if details == nil {
		t.Fatal("expected details map")
	}
	if details["limit"] != "3" || details["count"] != "3" {
		t.Errorf("unexpected details: %v", details)
	}

	if GetErrorDetails(errors.New("boom")) != nil {
		t.Error("expected nil details for plain error")
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	cause := errors.New("wrong last sequence")
	err := NewConflictError("revision mismatch", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
}
