// Package domain provides the core pipeline types: the per-request Context,
// stage Results, the StageError taxonomy and the request/response views.
package domain

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorKind is the category of a stage failure.
type ErrorKind string

const (
	KindAuthentication      ErrorKind = "authentication"
	KindAuthorization       ErrorKind = "authorization"
	KindAction              ErrorKind = "action"
	KindRender              ErrorKind = "render"
	KindConfiguration       ErrorKind = "configuration"
	KindVersionIncompatible ErrorKind = "version_incompatible"
	KindLoad                ErrorKind = "load"
	KindDelegation          ErrorKind = "delegation"

	// KindFault marks a panic recovered at the stage boundary.
	KindFault ErrorKind = "fault"
)

// Error codes carried by the built-in stages and the routing layer.
const (
	CodeMissingCredentials   = "missing_credentials"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeAuthenticationFailed = "authentication_failed"

	CodeNoIdentity   = "no_identity"
	CodeAccessDenied = "access_denied"

	CodeNoAuthorization = "no_authorization"
	CodeActionFailed    = "action_failed"

	CodeNoActionResult      = "no_action_result"
	CodeSerializationFailed = "serialization_failed"

	CodeNotImplementedActionStage = "not_implemented_action_stage"
	CodeInvalidStageArgument      = "invalid_stage_argument"
	CodeInvalidStageIndex         = "invalid_stage_index"
	CodeStageLoopLimit            = "stage_loop_limit"
	CodeMountCycle                = "mount_cycle"

	CodeDelegationTargetNotFound = "delegation_target_not_found"
	CodeDelegationFailed         = "delegation_failed"
)

// StageError is the error half of a Result. Values are treated as immutable
// once a Failure carries them; the With* helpers return modified copies.
type StageError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`

	// Stage is the name of the stage that produced the failure.
	Stage string `json:"stage"`

	// StatusHint is the suggested HTTP status; zero means no hint.
	StatusHint int `json:"-"`
}

// NewStageError creates a stage error.
func NewStageError(kind ErrorKind, code, message string) *StageError {
	return &StageError{Kind: kind, Code: code, Message: message}
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s) in %s: %s", e.Kind, e.Code, e.stageOrUnknown(), e.Message)
	}
	return fmt.Sprintf("%s in %s: %s", e.Kind, e.stageOrUnknown(), e.Message)
}

func (e *StageError) stageOrUnknown() string {
	if e.Stage == "" {
		return "unknown stage"
	}
	return e.Stage
}

// WithStage returns a copy attributed to the named stage.
func (e *StageError) WithStage(stage string) *StageError {
	cp := *e
	cp.Stage = stage
	return &cp
}

// WithStatus returns a copy carrying an HTTP status hint.
func (e *StageError) WithStatus(status int) *StageError {
	cp := *e
	cp.StatusHint = status
	return &cp
}

// HTTPStatusCode derives the response status purely from the failing stage:
// authenticate -> 401, authorize -> 403, otherwise the hint or 500.
func (e *StageError) HTTPStatusCode() int {
	switch e.Stage {
	case "authenticate":
		return http.StatusUnauthorized
	case "authorize":
		return http.StatusForbidden
	}
	if e.StatusHint != 0 {
		return e.StatusHint
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON shape of every error response the core generates.
type ErrorBody struct {
	Error     string `json:"error"`
	Stage     string `json:"stage"`
	Code      string `json:"code,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Body renders the error as an ErrorBody stamped with the given time.
func (e *StageError) Body(now time.Time) ErrorBody {
	return ErrorBody{
		Error:     e.Message,
		Stage:     e.Stage,
		Code:      e.Code,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// Convenience constructors for the built-in stage failures.

// ErrMissingCredentials is returned when no credential was presented.
func ErrMissingCredentials() *StageError {
	return NewStageError(KindAuthentication, CodeMissingCredentials, "Missing authentication credentials")
}

// ErrInvalidCredentials is returned for a malformed credential.
func ErrInvalidCredentials() *StageError {
	return NewStageError(KindAuthentication, CodeInvalidCredentials, "Invalid authentication credentials")
}

// ErrAuthenticationFailed is returned when verification yields no identity.
func ErrAuthenticationFailed() *StageError {
	return NewStageError(KindAuthentication, CodeAuthenticationFailed, "Authentication failed")
}

// ErrNoIdentity is returned by authorize when authenticate did not run.
func ErrNoIdentity() *StageError {
	return NewStageError(KindAuthorization, CodeNoIdentity, "No authenticated identity")
}

// ErrAccessDenied is returned when the permission decision disallows.
func ErrAccessDenied() *StageError {
	return NewStageError(KindAuthorization, CodeAccessDenied, "Access denied")
}

// ErrNoAuthorization is returned by action when authorize did not run.
func ErrNoAuthorization() *StageError {
	return NewStageError(KindAction, CodeNoAuthorization, "Request has not been authorized")
}

// ErrActionFailed is returned when business logic yields no result.
func ErrActionFailed(message string) *StageError {
	if message == "" {
		message = "Action produced no result"
	}
	return NewStageError(KindAction, CodeActionFailed, message)
}

// ErrNoActionResult is returned by render when action did not run.
func ErrNoActionResult() *StageError {
	return NewStageError(KindRender, CodeNoActionResult, "No action result to render")
}

// ErrNotImplementedAction is returned for a handler with no action stage and
// no delegation target.
func ErrNotImplementedAction() *StageError {
	return NewStageError(KindConfiguration, CodeNotImplementedActionStage, "Action stage not implemented").
		WithStage("action")
}

// ErrInvalidStageArgument is returned when a task is given something that is
// not a stage.
func ErrInvalidStageArgument() *StageError {
	return NewStageError(KindConfiguration, CodeInvalidStageArgument, "Argument is not a stage")
}
