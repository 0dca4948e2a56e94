// Package coreerrors implements the core's error taxonomy: every error
// surfaced to a caller is a *CoreError carrying a Kind, a human message,
// a correlation id, and an optional remediation hint.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry policy purposes.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindIntegration   Kind = "integration"
	KindBusinessLogic Kind = "business_logic"
	KindConfiguration Kind = "configuration"
	KindResource      Kind = "resource"
	KindSecurity      Kind = "security"
)

// Code enumerates the core's named error conditions.
type Code string

const (
	CodeTimeout            Code = "Timeout"
	CodeServiceUnavailable Code = "ServiceUnavailable"
	CodeRateLimited        Code = "RateLimited"
	CodeKanbanError        Code = "KanbanError"
	CodePersistenceError   Code = "PersistenceError"
	CodeAgentNotFound      Code = "AgentNotFound"
	CodeTaskNotFound       Code = "TaskNotFound"
	CodeAssignmentError    Code = "AssignmentError"
	CodeDependencyViolation Code = "DependencyViolation"
	CodeGraphInvariantError Code = "GraphInvariantError"
	CodeMissingCredentials Code = "MissingCredentials"
	CodeInvalidConfig      Code = "InvalidConfig"
	CodeProjectCacheFull   Code = "ProjectCacheFull"
	CodeLeaseTableFull     Code = "LeaseTableFull"
	CodeUnauthorized       Code = "Unauthorized"
)

var kindByCode = map[Code]Kind{
	CodeTimeout:             KindTransient,
	CodeServiceUnavailable:  KindTransient,
	CodeRateLimited:         KindTransient,
	CodeKanbanError:         KindIntegration,
	CodePersistenceError:    KindIntegration,
	CodeAgentNotFound:       KindBusinessLogic,
	CodeTaskNotFound:        KindBusinessLogic,
	CodeAssignmentError:     KindBusinessLogic,
	CodeDependencyViolation: KindBusinessLogic,
	CodeGraphInvariantError: KindBusinessLogic,
	CodeMissingCredentials:  KindConfiguration,
	CodeInvalidConfig:       KindConfiguration,
	CodeProjectCacheFull:    KindResource,
	CodeLeaseTableFull:      KindResource,
	CodeUnauthorized:        KindSecurity,
}

// CoreError is the error type every core operation surfaces.
type CoreError struct {
	Kind          Kind
	Code          Code
	Message       string
	CorrelationID string
	Remediation   string
	Cause         error
}

func (e *CoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return string(e.Code)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New constructs a CoreError for the given code, deriving its Kind from
// the code-to-kind taxonomy table.
func New(code Code, correlationID, message string, cause error) *CoreError {
	return &CoreError{
		Kind:          kindByCode[code],
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Cause:         cause,
	}
}

// WithRemediation attaches a remediation hint and returns the same error
// for chaining.
func (e *CoreError) WithRemediation(hint string) *CoreError {
	e.Remediation = hint
	return e
}

// Is reports whether err is a *CoreError with the given code.
func Is(err error, code Code) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// KindOf returns the Kind of err if it is a *CoreError, or "" otherwise.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTransient reports whether err should be retried internally.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// Convenience constructors for the business-logic errors the scheduler,
// resolver, and graph raise directly (no collaborator round-trip
// involved, so no correlation id is known yet — callers attach one via
// WithCorrelationID if they have one).

func AgentNotFound(agentID string) *CoreError {
	return New(CodeAgentNotFound, "", fmt.Sprintf("agent %q not found", agentID), nil)
}

func TaskNotFound(taskID string) *CoreError {
	return New(CodeTaskNotFound, "", fmt.Sprintf("task %q not found", taskID), nil)
}

func AssignmentErrorf(format string, args ...any) *CoreError {
	return New(CodeAssignmentError, "", fmt.Sprintf(format, args...), nil)
}

func DependencyViolation(taskID, reason string) *CoreError {
	return New(CodeDependencyViolation, "", fmt.Sprintf("task %q: %s", taskID, reason), nil)
}

func GraphInvariant(reason string) *CoreError {
	return New(CodeGraphInvariantError, "", reason, nil)
}

func Unauthorized(reason string) *CoreError {
	return New(CodeUnauthorized, "", reason, nil)
}

func ProjectCacheFull() *CoreError {
	return New(CodeProjectCacheFull, "", "project cache is full", nil)
}

func LeaseTableFull() *CoreError {
	return New(CodeLeaseTableFull, "", "lease table is full", nil)
}

// WithCorrelationID returns a copy of e with CorrelationID set.
func (e *CoreError) WithCorrelationID(id string) *CoreError {
	clone := *e
	clone.CorrelationID = id
	return &clone
}
