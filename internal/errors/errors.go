// Package errors provides centralized error definitions and error handling
// utilities for the maquette codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// Two categories of errors are provided. Domain-specific errors represent
// failures in specific subsystems:
//   - StoreError: session persistence failures
//   - CapabilityError: specialist invocation failures
//   - PipelineError: stage machine and routing failures
//
// Semantic errors represent common conditions:
//   - NotFoundError: resource not found
//   - TimeoutError: operation timed out
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var storeErr *errors.StoreError
//	if errors.As(err, &storeErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience, so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrSessionLocked indicates that a session is locked by another process.
	ErrSessionLocked = New("session is locked")
	// ErrSessionCorrupted indicates that session data is corrupted.
	ErrSessionCorrupted = New("session data corrupted")
	// ErrSessionTerminal indicates that a session has already reached a
	// terminal status and cannot be resumed.
	ErrSessionTerminal = New("session already terminal")
)

// Task and artifact sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found in the ledger.
	ErrTaskNotFound = New("task not found")
	// ErrArtifactNotFound indicates that an artifact could not be found.
	ErrArtifactNotFound = New("artifact not found")
	// ErrArtifactExists indicates an attempt to overwrite an immutable artifact.
	ErrArtifactExists = New("artifact already exists")
	// ErrBudgetExhausted indicates that a task has used all of its attempts.
	ErrBudgetExhausted = New("retry budget exhausted")
)

// Capability and tool sentinel errors
var (
	// ErrCapabilityUnknown indicates a dispatch to an unregistered capability.
	ErrCapabilityUnknown = New("capability not registered")
	// ErrEngineUnavailable indicates the execution engine is unreachable.
	ErrEngineUnavailable = New("engine unavailable")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// DomainError is the base interface for all maquette errors. It extends the
// standard error interface with classification methods.
type DomainError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// StoreError represents a session persistence failure. Store failures are
// never retried silently: session-state integrity cannot be assumed once a
// write has failed, so these carry Critical severity by default.
//
// Example:
//
//	err := errors.NewStoreError("failed to append decision", cause).WithSessionID("abc123")
type StoreError struct {
	baseError
	SessionID string
	Path      string
}

// NewStoreError creates a new StoreError.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *StoreError) WithSessionID(id string) *StoreError {
	e.SessionID = id
	return e
}

// WithPath adds the affected file path to the error context.
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "store error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("store error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CapabilityError represents a failure while invoking a specialist
// capability or one of its nested tools.
//
// Example:
//
//	err := errors.NewCapabilityError("invocation failed", cause).
//		WithCapability("code_synthesis").WithTaskID("task-1")
type CapabilityError struct {
	baseError
	Capability string
	TaskID     string
}

// NewCapabilityError creates a new CapabilityError.
func NewCapabilityError(message string, cause error) *CapabilityError {
	return &CapabilityError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithCapability adds the capability name to the error context.
func (e *CapabilityError) WithCapability(name string) *CapabilityError {
	e.Capability = name
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *CapabilityError) WithTaskID(id string) *CapabilityError {
	e.TaskID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *CapabilityError) WithRetryable(r bool) *CapabilityError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *CapabilityError) Error() string {
	var parts []string
	if e.Capability != "" {
		parts = append(parts, fmt.Sprintf("capability=%s", e.Capability))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}

	prefix := "capability error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("capability error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CapabilityError) Is(target error) bool {
	if _, ok := target.(*CapabilityError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PipelineError represents a stage machine or routing failure.
//
// Example:
//
//	err := errors.NewPipelineError("no route for failure", cause).
//		WithStage("execution").WithAttempt(3)
type PipelineError struct {
	baseError
	Stage   string
	TaskID  string
	Attempt int
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(message string, cause error) *PipelineError {
	return &PipelineError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Attempt: -1, // -1 indicates not set
	}
}

// WithStage adds the pipeline stage to the error context.
func (e *PipelineError) WithStage(stage string) *PipelineError {
	e.Stage = stage
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *PipelineError) WithTaskID(id string) *PipelineError {
	e.TaskID = id
	return e
}

// WithAttempt adds the attempt number to the error context.
func (e *PipelineError) WithAttempt(n int) *PipelineError {
	e.Attempt = n
	return e
}

// Error returns the formatted error message.
func (e *PipelineError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Attempt >= 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}

	prefix := "pipeline error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("pipeline error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PipelineError) Is(target error) bool {
	if _, ok := target.(*PipelineError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "abc123")
//	fmt.Println(err) // "session 'abc123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out. Timeouts are treated
// as transient: the classifier maps them to the tool-unavailable retry path.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for engine response", 30*time.Second)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for errors implementing
// DomainError with IsRetryable() returning true, TimeoutError instances,
// and errors wrapping ErrTimeout or ErrEngineUnavailable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.IsRetryable()
	}

	if Is(err, ErrTimeout) || Is(err, ErrEngineUnavailable) {
		return true
	}

	return false
}

// IsFatal returns true if the error must halt the current run without a
// stage advance. Store errors are always fatal: once a session write has
// failed, persisted state can no longer be trusted.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var storeErr *StoreError
	return As(err, &storeErr)
}

// GetSeverity returns the severity level of the error. Returns
// SeverityError for errors that don't implement DomainError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
