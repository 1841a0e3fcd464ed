// Package errors provides structured error types for the testops-mcp server.
// These errors include hints that tell the caller how to correct the request
// when something goes wrong.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/ctagard/testops-mcp/pkg/types"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Dispatch errors
	CodeUnknownTool      ErrorCode = "UNKNOWN_TOOL"
	CodeUnknownAction    ErrorCode = "UNKNOWN_ACTION"
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeHandlerPanic     ErrorCode = "HANDLER_PANIC"

	// Monitoring errors
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Test data errors
	CodeUnknownDataType     ErrorCode = "UNKNOWN_DATA_TYPE"
	CodeEnvironmentNotFound ErrorCode = "ENVIRONMENT_NOT_FOUND"
	CodeStorageFailed       ErrorCode = "STORAGE_FAILED"
	CodeLockTimeout         ErrorCode = "LOCK_TIMEOUT"
	CodeUnknownResource     ErrorCode = "UNKNOWN_RESOURCE"

	// Transport errors
	CodeTransportTimeout    ErrorCode = "TRANSPORT_TIMEOUT"
	CodeTransportClosed     ErrorCode = "TRANSPORT_CLOSED"
	CodeTransportSendFailed ErrorCode = "TRANSPORT_SEND_FAILED"
	CodeRemoteError         ErrorCode = "REMOTE_ERROR"
)

// ToolError is a structured error type that includes helpful information
// for the caller to understand what went wrong and how to fix it.
type ToolError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *ToolError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *ToolError) WithDetails(key string, value interface{}) *ToolError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *ToolError) WithCause(err error) *ToolError {
	e.Cause = err
	return e
}

// RPCCode maps the error category onto a JSON-RPC error code
func (e *ToolError) RPCCode() int {
	switch e.Code {
	case CodeUnknownTool:
		return types.CodeMethodNotFound
	case CodeInvalidArguments, CodeMissingParameter, CodeUnknownAction, CodeUnknownDataType:
		return types.CodeInvalidParams
	default:
		return types.CodeInternalError
	}
}

// ToRPC converts the error into a response envelope error member.
// The envelope message is Message alone; the hint travels in data.
func (e *ToolError) ToRPC() *types.RPCError {
	return &types.RPCError{
		Code:    e.RPCCode(),
		Message: e.Message,
		Data: &types.RPCErrorData{
			Code:    string(e.Code),
			Hint:    e.Hint,
			Details: e.Details,
		},
	}
}

// Is reports whether err is a ToolError with the given code
func Is(err error, code ErrorCode) bool {
	var te *ToolError
	if stderrors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// --- Dispatch Errors ---

// UnknownTool creates an error for a call addressed to an unregistered tool
func UnknownTool(name string, available []string) *ToolError {
	return &ToolError{
		Code:    CodeUnknownTool,
		Message: fmt.Sprintf("Unknown tool: %s", name),
		Hint:    fmt.Sprintf("Available tools are: %s. Use tools/list to discover their arguments.", strings.Join(available, ", ")),
		Details: map[string]interface{}{
			"tool": name,
		},
	}
}

// UnknownAction creates an error for an action outside a tool's action set
func UnknownAction(tool, action string, valid []string) *ToolError {
	return &ToolError{
		Code:    CodeUnknownAction,
		Message: fmt.Sprintf("Unknown action: %s", action),
		Hint:    fmt.Sprintf("Valid actions for %s are: %s.", tool, strings.Join(valid, ", ")),
		Details: map[string]interface{}{
			"tool":   tool,
			"action": action,
		},
	}
}

// InvalidArguments creates an error listing every schema violation of a call
func InvalidArguments(tool string, violations []string) *ToolError {
	return &ToolError{
		Code:    CodeInvalidArguments,
		Message: fmt.Sprintf("invalid arguments for %s: %s", tool, strings.Join(violations, "; ")),
		Hint:    "Check the tool's input schema with tools/list and resend the call.",
		Details: map[string]interface{}{
			"tool":       tool,
			"violations": violations,
		},
	}
}

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *ToolError {
	return &ToolError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// HandlerPanic creates an error for a handler that panicked
func HandlerPanic(tool string, recovered interface{}) *ToolError {
	return &ToolError{
		Code:    CodeHandlerPanic,
		Message: fmt.Sprintf("tool %s failed unexpectedly: %v", tool, recovered),
		Hint:    "This is a server bug. The server keeps serving other calls; retrying the same arguments will likely fail again.",
		Details: map[string]interface{}{
			"tool": tool,
		},
	}
}

// --- Monitoring Errors ---

// SessionNotFound creates an error for update/stop on a test with no session
func SessionNotFound(testFile string) *ToolError {
	return &ToolError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("No monitoring session found for %s", testFile),
		Hint:    "Call monitor_test_execution with action 'start' for this testFile first.",
		Details: map[string]interface{}{
			"testFile": testFile,
		},
	}
}

// --- Test Data Errors ---

// UnknownDataType creates an error for a data type with no generator
func UnknownDataType(dataType string, supported []string) *ToolError {
	return &ToolError{
		Code:    CodeUnknownDataType,
		Message: fmt.Sprintf("Unknown data type: %s", dataType),
		Hint:    fmt.Sprintf("Supported data types are: %s.", strings.Join(supported, ", ")),
		Details: map[string]interface{}{
			"dataType": dataType,
		},
	}
}

// EnvironmentNotFound creates an error for an update on a missing environment
func EnvironmentNotFound(name string) *ToolError {
	return &ToolError{
		Code:    CodeEnvironmentNotFound,
		Message: fmt.Sprintf("Environment %s does not exist", name),
		Hint:    "Create it first with manage_environment action 'create'.",
		Details: map[string]interface{}{
			"environment": name,
		},
	}
}

// StorageFailed creates an error for a failed read or write of a backing file
func StorageFailed(operation, path string, err error) *ToolError {
	return &ToolError{
		Code:    CodeStorageFailed,
		Message: fmt.Sprintf("failed to %s %s: %v", operation, path, err),
		Hint:    "Check that the file exists, is valid, and that the server can write to its directory.",
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
			"path":      path,
		},
	}
}

// LockTimeout creates an error when the advisory lock could not be taken in time
func LockTimeout(path string, timeout time.Duration) *ToolError {
	return &ToolError{
		Code:    CodeLockTimeout,
		Message: fmt.Sprintf("timed out after %v waiting for lock on %s", timeout, path),
		Hint:    "Another writer is holding the document. Retry the call.",
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// UnknownResource creates an error for a resource URI nothing serves
func UnknownResource(uri string) *ToolError {
	return &ToolError{
		Code:    CodeUnknownResource,
		Message: fmt.Sprintf("Unknown resource: %s", uri),
		Hint:    "Use resources/list to see available resources.",
	}
}

// --- Transport Errors ---

// TransportTimeout creates an error for a call whose reply never arrived
func TransportTimeout(tool string, timeout time.Duration) *ToolError {
	return &ToolError{
		Code:    CodeTransportTimeout,
		Message: fmt.Sprintf("Tool call timeout: %s", tool),
		Hint:    fmt.Sprintf("No reply arrived within %v. The server may be overloaded or the call may be stuck.", timeout),
		Details: map[string]interface{}{
			"method":  tool,
			"timeout": timeout.String(),
		},
	}
}

// TransportClosed creates an error for calls rejected by a disconnect
func TransportClosed(err error) *ToolError {
	msg := "connection closed"
	if err != nil {
		msg = fmt.Sprintf("connection closed: %v", err)
	}
	return &ToolError{
		Code:    CodeTransportClosed,
		Message: msg,
		Hint:    "Reconnect to the server and resend the call.",
		Cause:   err,
	}
}

// TransportSendFailed creates an error for a call that could not be written
func TransportSendFailed(method string, err error) *ToolError {
	return &ToolError{
		Code:    CodeTransportSendFailed,
		Message: fmt.Sprintf("failed to send %s: %v", method, err),
		Hint:    "The connection is likely broken. Reconnect and retry.",
		Cause:   err,
	}
}

// RemoteError wraps the error member of a response envelope
func RemoteError(rpcErr *types.RPCError) *ToolError {
	te := &ToolError{
		Code:    CodeRemoteError,
		Message: rpcErr.Message,
		Details: map[string]interface{}{
			"rpcCode": rpcErr.Code,
		},
	}
	if rpcErr.Data != nil {
		te.Hint = rpcErr.Data.Hint
		if rpcErr.Data.Code != "" {
			te.Details["code"] = rpcErr.Data.Code
		}
	}
	return te
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a ToolError from a generic error, attempting to preserve any existing structure
func FromError(err error) *ToolError {
	var te *ToolError
	if stderrors.As(err, &te) {
		return te
	}
	return &ToolError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Cause:   err,
	}
}
