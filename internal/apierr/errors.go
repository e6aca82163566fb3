// Package apierr defines the engine's error kinds (spec §7) as a
// struct-per-kind hierarchy, following the same shape as the teacher's
// pkg/types/errors.go: each kind implements Error() (and Unwrap() where
// it carries a cause), and a constructor builds it with context.
package apierr

import (
	"errors"
	"fmt"

	"github.com/sarlalian/conductorial/pkg/model"
)

// IllegalArgumentError — malformed definition or request.
type IllegalArgumentError struct {
	Message string
	Cause   error
}

func (e *IllegalArgumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("illegal argument: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("illegal argument: %s", e.Message)
}
func (e *IllegalArgumentError) Unwrap() error { return e.Cause }

func NewIllegalArgument(message string, cause error) *IllegalArgumentError {
	return &IllegalArgumentError{Message: message, Cause: cause}
}

// NotFoundError — unknown workflow/task/definition id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError — terminate-on-completed, duplicate registration, or a
// second application of an already-terminal TaskResult.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict: %s", e.Message) }

func NewConflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// TerminateWorkflowError is the decider's "workflow must end now"
// signal — not a process bug, a distinct Outcome variant (spec §9)
// carried through Go's normal error return rather than a panic or a
// thread-local flag.
type TerminateWorkflowError struct {
	Status model.WorkflowStatus
	TaskID string
	Reason string
}

func (e *TerminateWorkflowError) Error() string {
	return fmt.Sprintf("terminate workflow: status=%s reason=%s", e.Status, e.Reason)
}

func NewTerminateWorkflow(status model.WorkflowStatus, taskID, reason string) *TerminateWorkflowError {
	return &TerminateWorkflowError{Status: status, TaskID: taskID, Reason: reason}
}

// ScriptEvalFailedError — an expression-evaluator error; converted into
// a TerminateWorkflowError (status FAILED) when it leaves Decide. The
// DoWhile system task handles its own loopCondition errors by failing
// the loop task instead.
type ScriptEvalFailedError struct {
	Expression string
	Cause      error
}

func (e *ScriptEvalFailedError) Error() string {
	return fmt.Sprintf("script eval failed for %q: %v", e.Expression, e.Cause)
}
func (e *ScriptEvalFailedError) Unwrap() error { return e.Cause }

func NewScriptEvalFailed(expression string, cause error) *ScriptEvalFailedError {
	return &ScriptEvalFailedError{Expression: expression, Cause: cause}
}

// TransientError — queue/update I/O failure; caller should retry, state
// is preserved.
type TransientError struct {
	Message string
	Cause   error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("transient: %s", e.Message)
}
func (e *TransientError) Unwrap() error { return e.Cause }

func NewTransient(message string, cause error) *TransientError {
	return &TransientError{Message: message, Cause: cause}
}

// NonTransientError — unrecoverable scheduling error; the workflow
// moves toward terminal via the decider's next pass rather than being
// retried.
type NonTransientError struct {
	Message string
}

func (e *NonTransientError) Error() string { return fmt.Sprintf("non-transient: %s", e.Message) }

func NewNonTransient(message string) *NonTransientError {
	return &NonTransientError{Message: message}
}

// IsRetryable reports whether err represents a condition the caller
// should retry (Transient) as opposed to one it should surface
// (IllegalArgument, NotFound, Conflict, NonTransient).
func IsRetryable(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// AsTerminate unpacks a TerminateWorkflowError, if err carries one.
func AsTerminate(err error) (*TerminateWorkflowError, bool) {
	var t *TerminateWorkflowError
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}
