// Package util provides logging helpers and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// use errors.Is regardless of the context carried.
var (
	ErrConnection         = errors.New("connection failed")
	ErrStaging            = errors.New("candidate staging failed")
	ErrNoCandidateStaged  = errors.New("no candidate configuration staged")
	ErrReplaceUnsupported = errors.New("configuration replace not supported on this platform")
	ErrTransport          = errors.New("command channel transport failure")
	ErrCommandRejected    = errors.New("command rejected by device")
	ErrNotConnected       = errors.New("device not connected")
	ErrDeviceLocked       = errors.New("device locked by another holder")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// ConnectionError is returned by session open when the device cannot be
// reached or refuses the credentials.
type ConnectionError struct {
	Device string
	Stage  string // "command-api" or "ssh"
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s (%s): %v", e.Device, e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// NewConnectionError creates a connection error
func NewConnectionError(device, stage string, err error) *ConnectionError {
	return &ConnectionError{Device: device, Stage: stage, Err: err}
}

// StagingError reports a candidate file that could not be uploaded or was not
// listed on the device after upload.
type StagingError struct {
	Device string
	File   string
	Reason string
	Err    error
}

func (e *StagingError) Error() string {
	msg := fmt.Sprintf("staging %s on %s: %s", e.File, e.Device, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StagingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStaging}
	}
	return []error{ErrStaging, e.Err}
}

// NewStagingError creates a staging error
func NewStagingError(device, file, reason string, err error) *StagingError {
	return &StagingError{Device: device, File: file, Reason: reason, Err: err}
}

// TransportError is a failure of the command channel itself (dial, TLS,
// timeout, HTTP status, malformed reply). Per-command rejections inside a
// successful reply are never TransportErrors.
type TransportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// NewTransportError creates a transport error
func NewTransportError(operation string, statusCode int, err error) *TransportError {
	return &TransportError{Operation: operation, StatusCode: statusCode, Err: err}
}

// CommandError describes a single command the device rejected.
type CommandError struct {
	Command string
	Code    int64
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command %q rejected (code %d)", e.Command, e.Code)
	}
	return fmt.Sprintf("command %q rejected (code %d): %s", e.Command, e.Code, e.Message)
}

func (e *CommandError) Unwrap() error {
	return ErrCommandRejected
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0]
	}
	return fmt.Sprintf("invalid configuration:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
