package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the BFA.

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

// ErrConflict indicates a resource already exists (e-mail or document in use).
type ErrConflict struct {
	Resource string
	Message  string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrExternalService indicates a failure in an external service call.
// It is the upstream-unavailable case of the taxonomy.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrPartialSignup indicates the account was created but a later signup
// stage failed, leaving state that needs reconciliation.
type ErrPartialSignup struct {
	UID   string
	Stage SignupStage
	Err   error
}

func (e *ErrPartialSignup) Error() string {
	return fmt.Sprintf("partial signup for uid %s at stage %s: %v", e.UID, e.Stage, e.Err)
}

func (e *ErrPartialSignup) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// DirectoryErrorKind classifies user directory failures so callers never
// inspect provider-specific codes.
type DirectoryErrorKind int

const (
	DirectoryUnavailable DirectoryErrorKind = iota
	DirectoryUserNotFound
	DirectoryEmailExists
	DirectoryInvalidPassword
)

func (k DirectoryErrorKind) String() string {
	switch k {
	case DirectoryUserNotFound:
		return "user_not_found"
	case DirectoryEmailExists:
		return "email_exists"
	case DirectoryInvalidPassword:
		return "invalid_password"
	default:
		return "unavailable"
	}
}

// ErrDirectory is returned by UserDirectory implementations.
// Code carries the raw provider code for logging only.
type ErrDirectory struct {
	Kind DirectoryErrorKind
	Op   string
	Code string
	Err  error
}

func (e *ErrDirectory) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("directory %s [%s]: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("directory %s [%s] %s", e.Op, e.Kind, e.Code)
}

func (e *ErrDirectory) Unwrap() error {
	return e.Err
}

// ErrStore is returned by RecordStore implementations.
type ErrStore struct {
	Op   string
	Code string
	Err  error
}

func (e *ErrStore) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s: %s", e.Op, e.Code)
}

func (e *ErrStore) Unwrap() error {
	return e.Err
}

// DirectoryKind reports the directory error kind carried by err, if any.
func DirectoryKind(err error) (DirectoryErrorKind, bool) {
	de, ok := asDirectory(err)
	if !ok {
		return DirectoryUnavailable, false
	}
	return de.Kind, true
}

func asDirectory(err error) (*ErrDirectory, bool) {
	var de *ErrDirectory
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ErrorCode extracts the upstream code from directory or store errors for logs.
func ErrorCode(err error) string {
	if de, ok := asDirectory(err); ok {
		return de.Code
	}
	var se *ErrStore
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
