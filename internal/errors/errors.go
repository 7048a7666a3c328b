// Package errors provides centralized error definitions and error handling utilities
// for dvc. It defines the locking error taxonomy, stage errors, semantic error
// types, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - LockError: the repository lock artifact is held by another process
//   - ResourceBusyError: a path is read- or write-locked by another process
//   - StageError: a stage could not be run
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewLockError(".dvc/lock")
//	err := errors.NewWriterBusyError("data/foo", 100)
//	err := errors.NewStageError("command failed", cause).WithStage("train.dvc")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrGateContended) { ... }
//
//	var busy *errors.ResourceBusyError
//	if errors.As(err, &busy) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
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

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lock-related sentinel errors
var (
	// ErrGateContended indicates that the repository lock artifact is held
	// by another process.
	ErrGateContended = New("repository lock is held by another process")
	// ErrResourceBusy indicates that a path is locked by another process.
	ErrResourceBusy = New("resource is busy")
)

// Repository and stage sentinel errors
var (
	// ErrNotDvcRepository indicates that no .dvc directory was found.
	ErrNotDvcRepository = New("not a dvc repository")
	// ErrStageInvalid indicates that a stage file is malformed.
	ErrStageInvalid = New("stage is invalid")
	// ErrStageFailed indicates that a stage command exited unsuccessfully.
	ErrStageFailed = New("stage command failed")
)

// FailedToLockMessage is shown when the repository lock cannot be obtained.
const FailedToLockMessage = "cannot perform the command because another DVC process seems to be " +
	"running on this project. If that is not the case, manually remove " +
	"`.dvc/lock` and try again."

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DvcError is the base interface for all dvc errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type DvcError interface {
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

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
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

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// LockError is returned when the repository lock artifact could not be
// obtained after the single retry. The message is fixed and tells the
// operator how to clear a stuck artifact.
//
// Example:
//
//	err := errors.NewLockError("/repo/.dvc/lock")
//	errors.Is(err, errors.ErrGateContended) // true
type LockError struct {
	baseError
	LockFile string
}

// NewLockError creates a new LockError for the given lock artifact.
func NewLockError(lockFile string) *LockError {
	return &LockError{
		baseError: baseError{
			message:    FailedToLockMessage,
			cause:      ErrGateContended,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		LockFile: lockFile,
	}
}

// Error returns the fixed remediation message.
func (e *LockError) Error() string {
	return e.message
}

// Is checks if this error matches the target.
func (e *LockError) Is(target error) bool {
	if _, ok := target.(*LockError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ResourceBusyError is returned when a path cannot be locked because
// another process holds it. Exactly one of Writer or Readers is set.
//
// Example:
//
//	err := errors.NewReadersBusyError("data/foo", []int{100, 101})
//	fmt.Println(err) // "'data/foo' is busy, it is being read by '[100, 101]'"
type ResourceBusyError struct {
	baseError
	Path    string
	Writer  int
	Readers []int
}

// NewWriterBusyError reports a path that is being written by writer.
func NewWriterBusyError(path string, writer int) *ResourceBusyError {
	return &ResourceBusyError{
		baseError: baseError{
			message:    fmt.Sprintf("'%s' is busy, it is being written to by '%d'.", path, writer),
			cause:      ErrResourceBusy,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Path:   path,
		Writer: writer,
	}
}

// NewReadersBusyError reports a path that is being read by readers.
func NewReadersBusyError(path string, readers []int) *ResourceBusyError {
	pids := make([]int, len(readers))
	copy(pids, readers)
	return &ResourceBusyError{
		baseError: baseError{
			message:    fmt.Sprintf("'%s' is busy, it is being read by '%s'", path, formatPIDs(pids)),
			cause:      ErrResourceBusy,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Path:    path,
		Readers: pids,
	}
}

// formatPIDs renders pids as a bracketed, comma-separated list: [100, 101].
func formatPIDs(pids []int) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Error returns the formatted error message.
func (e *ResourceBusyError) Error() string {
	return e.message
}

// Is checks if this error matches the target.
func (e *ResourceBusyError) Is(target error) bool {
	if _, ok := target.(*ResourceBusyError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Holders returns the pids blocking the path.
func (e *ResourceBusyError) Holders() []int {
	if e.Writer != 0 {
		return []int{e.Writer}
	}
	return e.Readers
}

// StageError represents errors related to running a stage.
//
// Example:
//
//	err := errors.NewStageError("command failed", errors.ErrStageFailed)
//	err = err.WithStage("train.dvc").WithCommand("python train.py")
//	fmt.Println(err) // "stage error [stage=train.dvc, cmd=python train.py]: command failed: stage command failed"
type StageError struct {
	baseError
	Stage   string
	Command string
}

// NewStageError creates a new StageError.
func NewStageError(message string, cause error) *StageError {
	return &StageError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithStage adds the stage file path to the error context.
func (e *StageError) WithStage(path string) *StageError {
	e.Stage = path
	return e
}

// WithCommand adds the stage command to the error context.
func (e *StageError) WithCommand(cmd string) *StageError {
	e.Command = cmd
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("cmd=%s", e.Command))
	}

	prefix := "stage error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("stage error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("cmd cannot be empty")
//	err = err.WithField("cmd").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a condition that may
// clear up if the caller tries again later. The locking core never retries
// on its own; this is a hint for callers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var dvcErr DvcError
	if As(err, &dvcErr) {
		return dvcErr.IsRetryable()
	}

	return Is(err, ErrResourceBusy)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var dvcErr DvcError
	if As(err, &dvcErr) {
		return dvcErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement DvcError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var dvcErr DvcError
	if As(err, &dvcErr) {
		return dvcErr.Severity()
	}

	return SeverityError
}

// IsLockError returns true if err is either a LockError or a ResourceBusyError.
func IsLockError(err error) bool {
	if err == nil {
		return false
	}

	var lockErr *LockError
	var busyErr *ResourceBusyError
	return As(err, &lockErr) || As(err, &busyErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare string, this preserves the DvcError chain for errors.As.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to read stage file")
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
