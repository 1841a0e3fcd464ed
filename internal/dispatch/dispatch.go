// Package dispatch routes tool calls by name to registered handlers.
//
// Each registered tool carries its MCP definition. Arguments are validated
// against the definition's input schema before the handler runs, so handlers
// only see well-typed input. A panicking handler is converted into an error
// result for that call alone.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/internal/metrics"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// HandlerFunc executes one tool. The returned text becomes the single content
// block of the result.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (string, error)

type entry struct {
	tool    mcp.Tool
	schema  *gojsonschema.Schema
	handler HandlerFunc
}

// Registry maps tool names to handlers
type Registry struct {
	entries map[string]*entry
	mu      sync.RWMutex

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logging.Component(logger, "dispatch"),
		metrics: m,
	}
}

// Register adds a tool. It fails when the tool's input schema does not compile.
func (r *Registry) Register(tool mcp.Tool, handler HandlerFunc) error {
	schema, err := compileSchema(tool)
	if err != nil {
		return fmt.Errorf("failed to compile input schema of %s: %w", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tool.Name] = &entry{tool: tool, schema: schema, handler: handler}
	return nil
}

// MustRegister is Register for static tool tables
func (r *Registry) MustRegister(tool mcp.Tool, handler HandlerFunc) {
	if err := r.Register(tool, handler); err != nil {
		panic(err)
	}
}

// compileSchema extracts inputSchema from the tool's wire form so that both
// structured and raw schemas are handled
func compileSchema(tool mcp.Tool) (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(tool)
	if err != nil {
		return nil, err
	}
	schema := gjson.GetBytes(raw, "inputSchema")
	if !schema.Exists() {
		return nil, fmt.Errorf("tool has no input schema")
	}
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema.Raw))
}

// Tools returns every registered definition, sorted by name
func (r *Registry) Tools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	tools := r.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Dispatch runs the named tool. Exactly one of the results is non-nil.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (*types.ToolResult, *types.RPCError) {
	text, err := r.Call(ctx, name, args)
	if err != nil {
		return nil, errors.FromError(err).ToRPC()
	}
	return types.TextResult(text), nil
}

// Call runs the named tool and returns its text or a ToolError
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (text string, err error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("unknown tool", "tool", name)
		return "", errors.UnknownTool(name, r.Names())
	}

	args = normalizeArgs(args)
	if violations := validate(e.schema, args); len(violations) > 0 {
		r.metrics.ObserveToolCall(name, metrics.OutcomeError, 0)
		return "", errors.InvalidArguments(name, violations)
	}

	start := time.Now()
	outcome := metrics.OutcomeOK
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", rec, "stack", string(debug.Stack()))
			outcome = metrics.OutcomePanic
			text, err = "", errors.HandlerPanic(name, rec)
		}
		r.metrics.ObserveToolCall(name, outcome, time.Since(start))
	}()

	text, err = e.handler(ctx, args)
	if err != nil {
		outcome = metrics.OutcomeError
		r.logger.Debug("tool failed", "tool", name, "error", err)
	}
	return text, err
}

// normalizeArgs treats absent or null arguments as an empty object
func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || gjson.ParseBytes(args).Type == gjson.Null {
		return json.RawMessage("{}")
	}
	return args
}

func validate(schema *gojsonschema.Schema, args json.RawMessage) []string {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return violations
}

// DecodeArgs unmarshals validated arguments into T
func DecodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(args, &v); err != nil {
		return v, errors.Wrap(errors.CodeInvalidArguments, fmt.Sprintf("failed to decode arguments: %v", err),
			"Check the argument types against the tool's input schema.", err)
	}
	return v, nil
}
