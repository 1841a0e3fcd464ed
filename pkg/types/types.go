// Package types defines shared data types used across the testops-mcp server
// and its client.
//
// This package provides type definitions for:
//   - Envelopes: CallEnvelope, ResponseEnvelope and RPCError (JSON-RPC 2.0, MCP shaped)
//   - ToolResult / Content: the payload of a successful tool call
//   - SessionStatus, StepStatus, Session, StepEvent, Metrics: monitoring state
//   - MonitorAction, DataAction, EnvironmentAction: closed action enums
//   - AlertRule, AlertAction, TriggeredAlert: alerting
//
// These types are the contract between the server, the transport and the
// client facade.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSONRPCVersion is the only protocol version accepted on the wire
const JSONRPCVersion = "2.0"

// MethodToolsCall is the method carried by every tool call envelope
const MethodToolsCall = "tools/call"

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// CallEnvelope is an outbound request. For tool calls Method is
// MethodToolsCall and Params holds a ToolCallParams.
type CallEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the envelope expects no response
func (e *CallEnvelope) IsNotification() bool {
	return e.ID == nil
}

// ToolCallParams carries the tool name and its caller-supplied arguments
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ResponseEnvelope echoes the call id and carries either Result or Error
type ResponseEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a response envelope
type RPCError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *RPCErrorData `json:"data,omitempty"`
}

// RPCErrorData carries the structured error code and hint of a ToolError
type RPCErrorData struct {
	Code    string                 `json:"code,omitempty"`
	Hint    string                 `json:"hint,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// Content is one block of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the result member of a successful tool call
type ToolResult struct {
	Content []Content `json:"content"`
}

// TextResult builds a ToolResult with a single text block
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// Text returns the text of the first content block, or "" when empty
func (r *ToolResult) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// NewCallEnvelope builds a request envelope with the given id
func NewCallEnvelope(id int64, method string, params interface{}) (*CallEnvelope, error) {
	env := &CallEnvelope{JSONRPC: JSONRPCVersion, ID: &id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, err)
		}
		env.Params = raw
	}
	return env, nil
}

// SessionStatus represents the top-level status of a monitoring session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// StepStatus is the status reported with a monitoring update. Only the three
// named values move a metric counter; any other value is recorded verbatim.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusError     StepStatus = "error"
	StepStatusWarning   StepStatus = "warning"
)

// StepEvent is one entry of a session's step history
type StepEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Action    string      `json:"action"`
	Status    StepStatus  `json:"status"`
	Details   interface{} `json:"details,omitempty"`
}

// Metrics are the counters derived from a session's updates
type Metrics struct {
	ExecutionTimeMs      int64  `json:"executionTime"`
	StepsCompleted       int    `json:"stepsCompleted"`
	Errors               int    `json:"errors"`
	Warnings             int    `json:"warnings"`
	TotalExecutionTimeMs *int64 `json:"totalExecutionTime,omitempty"`
}

// Session is a snapshot of one test run's monitoring record
type Session struct {
	TestFile    string                 `json:"testFile"`
	StartTime   time.Time              `json:"startTime"`
	EndTime     *time.Time             `json:"endTime,omitempty"`
	Status      SessionStatus          `json:"status"`
	Steps       []StepEvent            `json:"steps"`
	Metrics     Metrics                `json:"metrics"`
	InitialData map[string]interface{} `json:"initialData,omitempty"`
}

// MonitorAction selects the monitoring state machine operation
type MonitorAction string

const (
	MonitorStart  MonitorAction = "start"
	MonitorUpdate MonitorAction = "update"
	MonitorStop   MonitorAction = "stop"
	MonitorStatus MonitorAction = "status"
)

// MonitorActions lists every MonitorAction
var MonitorActions = []MonitorAction{MonitorStart, MonitorUpdate, MonitorStop, MonitorStatus}

// DataAction selects the test data operation
type DataAction string

const (
	DataGenerate DataAction = "generate"
	DataUpdate   DataAction = "update"
	DataValidate DataAction = "validate"
	DataBackup   DataAction = "backup"
)

// DataActions lists every DataAction
var DataActions = []DataAction{DataGenerate, DataUpdate, DataValidate, DataBackup}

// EnvironmentAction selects the environment management operation
type EnvironmentAction string

const (
	EnvironmentCreate   EnvironmentAction = "create"
	EnvironmentUpdate   EnvironmentAction = "update"
	EnvironmentValidate EnvironmentAction = "validate"
	EnvironmentSwitch   EnvironmentAction = "switch"
)

// EnvironmentActions lists every EnvironmentAction
var EnvironmentActions = []EnvironmentAction{EnvironmentCreate, EnvironmentUpdate, EnvironmentValidate, EnvironmentSwitch}

// ValidationResult is the outcome of validating a test data record.
// A failed validation is data, not an error.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// AlertStatus is the activation state of an alert rule
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertInactive AlertStatus = "inactive"
)

// AlertActionType names what an alert does when it fires
type AlertActionType string

const (
	AlertActionLog          AlertActionType = "log"
	AlertActionNotification AlertActionType = "notification"
	AlertActionTestAction   AlertActionType = "test_action"
)

// AlertAction is one step executed when an alert rule matches
type AlertAction struct {
	Type    AlertActionType `json:"type"`
	Message string          `json:"message,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Action  string          `json:"action,omitempty"`
}

// AlertRule is a persisted condition/action pair
type AlertRule struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Conditions map[string]interface{} `json:"conditions"`
	Actions    []AlertAction          `json:"actions"`
	Status     AlertStatus            `json:"status"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// TriggeredAlert records one match of a rule against event data
type TriggeredAlert struct {
	Alert       AlertRule              `json:"alert"`
	TestFile    string                 `json:"testFile,omitempty"`
	TriggeredAt time.Time              `json:"triggeredAt"`
	Data        map[string]interface{} `json:"data"`
}
