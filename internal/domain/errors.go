// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "errors"

// ErrorType represents the semantic category of an error
type ErrorType int

const (
	ErrorTypeValidation   ErrorType = iota // Input validation errors (400 Bad Request)
	ErrorTypeNotFound                      // Resource not found errors (404 Not Found)
	ErrorTypeConflict                      // Resource conflict errors (409 Conflict)
	ErrorTypeUnauthorized                  // Caller not allowed to act on the resource (403 Forbidden)
	ErrorTypeInternal                      // Internal server errors (500 Internal Server Error)
	ErrorTypeUnavailable                   // Service unavailable errors (503 Service Unavailable)
)

// Stable machine codes carried by domain errors so that callers can branch
// on the rejection reason without parsing messages.
const (
	ErrorCodeTimeOutOfWindow     = "time_out_of_window"
	ErrorCodeVolunteerRestricted = "volunteer_restricted"
	ErrorCodeParticipantNotFound = "participant_not_found"
	ErrorCodeDayConflict         = "day_conflict"
	ErrorCodePairLimitReached    = "pair_limit_reached"
	ErrorCodeIllegalTransition   = "illegal_transition"
	ErrorCodeNotAuthorized       = "not_authorized"
	ErrorCodeDuplicateRoom       = "duplicate_room_id"
	ErrorCodeInvalidTimezone     = "invalid_timezone"
	ErrorCodeBadToken            = "bad_token"
	ErrorCodeTokenMismatch       = "token_mismatch"
	ErrorCodeServiceUnavailable  = "service_unavailable"
	ErrorCodeInternal            = "internal_error"
)

// DomainError represents an error with semantic type information
type DomainError struct {
	Type    ErrorType
	Code    string            // stable machine code, optional
	Message string
	Details map[string]string // rejection context surfaced to callers, optional
	Err     error             // underlying error for wrapping
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithCode sets the machine code and returns the error for chaining.
func (e *DomainError) WithCode(code string) *DomainError {
	e.Code = code
	return e
}

// WithDetail records a key-value pair of rejection context and returns the
// error for chaining.
func (e *DomainError) WithDetail(key, value string) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// GetErrorType returns the semantic type of an error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal // default fallback
}

// GetErrorCode returns the machine code of an error, falling back to a
// generic code derived from the error type.
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Code != "" {
			return domainErr.Code
		}
		switch domainErr.Type {
		case ErrorTypeValidation:
			return "validation_failed"
		case ErrorTypeNotFound:
			return "not_found"
		case ErrorTypeConflict:
			return "conflict"
		case ErrorTypeUnauthorized:
			return ErrorCodeNotAuthorized
		case ErrorTypeUnavailable:
			return ErrorCodeServiceUnavailable
		}
	}
	return ErrorCodeInternal
}

// GetErrorDetails returns the detail map of an error, or nil.
func GetErrorDetails(err error) map[string]string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the caller-facing message of an error. The wrapped
// cause is left out so infrastructure detail never leaks to clients.
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "internal error"
}

// Error constructors for different types
func NewValidationError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeValidation, Message: message, Err: errors.Join(err...)}
}

func NewNotFoundError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeNotFound, Message: message, Err: errors.Join(err...)}
}

func NewConflictError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeConflict, Message: message, Err: errors.Join(err...)}
}

func NewUnauthorizedError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnauthorized, Code: ErrorCodeNotAuthorized, Message: message, Err: errors.Join(err...)}
}

func NewInternalError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeInternal, Code: ErrorCodeInternal, Message: message, Err: errors.Join(err...)}
}

func NewUnavailableError(message string, err ...error) *DomainError {
	return &DomainError{Type: ErrorTypeUnavailable, Code: ErrorCodeServiceUnavailable, Message: message, Err: errors.Join(err...)}
}
