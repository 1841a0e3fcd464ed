package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/testops-mcp/internal/dispatch"
	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/monitor"
	"github.com/ctagard/testops-mcp/internal/testdata"
	"github.com/ctagard/testops-mcp/internal/testgen"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// Tool names
const (
	ToolGenerateTestCase     = "generate_test_case"
	ToolAnalyzeTestFailure   = "analyze_test_failure"
	ToolManageTestData       = "manage_test_data"
	ToolMonitorTestExecution = "monitor_test_execution"
	ToolAutoHealLocators     = "auto_heal_locators"
	ToolGenerateAPITests     = "generate_api_tests"
	ToolManageEnvironment    = "manage_environment"
	ToolGetInsights          = "get_insights"
	ToolSetupAlerts          = "setup_alerts"
	ToolCheckAlerts          = "check_alerts"
)

// registerTools registers every tool with the dispatcher and mirrors it into
// mcp-go so tools/list reports the same definitions
func (s *Server) registerTools() {
	// Authoring
	s.registerGenerateTestCase()
	s.registerGenerateAPITests()
	s.registerAutoHealLocators()
	s.registerAnalyzeTestFailure()

	// Data
	s.registerManageTestData()
	s.registerManageEnvironment()

	// Monitoring
	s.registerMonitorTestExecution()
	s.registerGetInsights()
	s.registerSetupAlerts()
	s.registerCheckAlerts()
}

func (s *Server) addTool(tool mcp.Tool, handler dispatch.HandlerFunc) {
	s.registry.MustRegister(tool, handler)
	s.mcpServer.AddTool(tool, s.delegate(tool.Name))
}

// delegate routes a tool call that arrived through mcp-go into the dispatcher
func (s *Server) delegate(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetRawArguments())
		if err != nil {
			return mcp.NewToolResultError(errors.FromError(err).Error()), nil
		}
		text, err := s.registry.Call(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func enumOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Authoring Tools

func (s *Server) registerGenerateTestCase() {
	tool := mcp.NewTool(ToolGenerateTestCase,
		mcp.WithDescription("Generate a Playwright test case for a scenario, following the existing page object and test data patterns."),
		mcp.WithString("scenario",
			mcp.Required(),
			mcp.Description("Scenario to cover, e.g. 'Login with valid credentials'. Becomes the test title."),
		),
		mcp.WithString("testType",
			mcp.Description("Kind of test to generate (default: ui)"),
			mcp.Enum(testgen.TestTypeUI, testgen.TestTypeAPI),
			mcp.DefaultString(testgen.DefaultTestType),
		),
		mcp.WithString("userType",
			mcp.Description("Test data user the test logs in with; reads the '<userType>User' entry (default: valid)"),
			mcp.Enum("valid", "invalid", "new"),
			mcp.DefaultString(testgen.DefaultUserType),
		),
	)
	s.addTool(tool, s.handleGenerateTestCase)
}

func (s *Server) registerGenerateAPITests() {
	tool := mcp.NewTool(ToolGenerateAPITests,
		mcp.WithDescription("Generate a Playwright API test that calls one endpoint and checks for a 200 response."),
		mcp.WithString("endpoint",
			mcp.Required(),
			mcp.Description("Endpoint path, e.g. '/api/productsList'"),
		),
		mcp.WithString("method",
			mcp.Required(),
			mcp.Description("HTTP method: GET, POST, PUT, PATCH or DELETE (case-insensitive)"),
		),
		mcp.WithObject("testData",
			mcp.Description("Request payload embedded in the generated test"),
		),
	)
	s.addTool(tool, s.handleGenerateAPITests)
}

func (s *Server) registerAutoHealLocators() {
	tool := mcp.NewTool(ToolAutoHealLocators,
		mcp.WithDescription("Suggest alternative locators (text, data-testid, css, xpath) for a locator that no longer matches."),
		mcp.WithString("testFile",
			mcp.Description("Test file containing the broken locator"),
		),
		mcp.WithString("brokenLocator",
			mcp.Required(),
			mcp.Description("The locator that no longer matches"),
		),
		mcp.WithString("pageUrl",
			mcp.Description("URL of the page the locator targets"),
		),
	)
	s.addTool(tool, s.handleAutoHealLocators)
}

func (s *Server) registerAnalyzeTestFailure() {
	tool := mcp.NewTool(ToolAnalyzeTestFailure,
		mcp.WithDescription("Analyze a test failure and suggest fixes. timeout, assertion and element_not_found have dedicated diagnoses; any other type gets a generic one quoting the error message."),
		mcp.WithString("testFile",
			mcp.Required(),
			mcp.Description("Path of the failing test file"),
		),
		mcp.WithString("failureType",
			mcp.Required(),
			mcp.Description("Failure category, e.g. timeout, assertion or element_not_found"),
		),
		mcp.WithString("errorMessage",
			mcp.Description("Error message reported by the test runner"),
		),
	)
	s.addTool(tool, s.handleAnalyzeTestFailure)
}

// Data Tools

func (s *Server) registerManageTestData() {
	tool := mcp.NewTool(ToolManageTestData,
		mcp.WithDescription("Manage the YAML test data document. generate: create synthetic data (data.count > 1 for a list). update: shallow-merge data into the stored entry. validate: check data against the type's rules. backup: copy the stored entry to a backup file."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum(enumOf(types.DataActions)...),
		),
		mcp.WithString("dataType",
			mcp.Required(),
			mcp.Description("Data type, e.g. user, product or order"),
		),
		mcp.WithObject("data",
			mcp.Description("Fields to merge (update), the record to check (validate) or generation options (generate)"),
			mcp.Properties(map[string]any{
				"count": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     testdata.MaxCount,
					"description": "Number of records to generate",
				},
			}),
		),
	)
	s.addTool(tool, s.handleManageTestData)
}

func (s *Server) registerManageEnvironment() {
	tool := mcp.NewTool(ToolManageEnvironment,
		mcp.WithDescription("Manage named test environments (baseUrl, timeout, retries, headless, slowMo, viewport, userAgent) stored in the test data document."),
		mcp.WithString("environment",
			mcp.Required(),
			mcp.Description("Environment name, e.g. dev, staging or production"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum(enumOf(types.EnvironmentActions)...),
		),
		mcp.WithObject("config",
			mcp.Description("Environment settings for create and update; omitted keys keep their current or default values"),
		),
	)
	s.addTool(tool, s.handleManageEnvironment)
}

// Monitoring Tools

func (s *Server) registerMonitorTestExecution() {
	tool := mcp.NewTool(ToolMonitorTestExecution,
		mcp.WithDescription("Track a test run. start: open a session (data is kept as initial data). update: record a step from data.action, data.status (completed, error or warning), data.details and data.executionTime. stop: close the session. status: show the session."),
		mcp.WithString("testFile",
			mcp.Required(),
			mcp.Description("Test file identifying the session"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum(enumOf(types.MonitorActions)...),
		),
		mcp.WithObject("data",
			mcp.Description("Initial data (start) or the step report (update)"),
			mcp.Properties(map[string]any{
				"action":        map[string]any{"type": "string"},
				"status":        map[string]any{"type": "string"},
				"details":       map[string]any{},
				"executionTime": map[string]any{"type": "number", "minimum": 0},
			}),
		),
	)
	s.addTool(tool, s.handleMonitorTestExecution)
}

func (s *Server) registerGetInsights() {
	tool := mcp.NewTool(ToolGetInsights,
		mcp.WithDescription("Summarize monitored runs: execution time, success rate, failure patterns and recommendations."),
		mcp.WithString("testSuite",
			mcp.Required(),
			mcp.Description("Substring of the test files to include; 'all' includes every run"),
		),
		mcp.WithString("timeRange",
			mcp.Description("Window of runs to include, e.g. 30m, 1h or 7d (default: 1h)"),
			mcp.DefaultString(monitor.DefaultTimeRange),
		),
	)
	s.addTool(tool, s.handleGetInsights)
}

func (s *Server) registerSetupAlerts() {
	tool := mcp.NewTool(ToolSetupAlerts,
		mcp.WithDescription("Persist an alert rule. Each condition is either a value compared for equality or a string starting with an operator (>, >=, <, <=, ==, !=), e.g. {\"duration\": \"> 5000\"}."),
		mcp.WithString("alertType",
			mcp.Required(),
			mcp.Description("Alert category, e.g. slow_test or failure"),
		),
		mcp.WithObject("conditions",
			mcp.Required(),
			mcp.Description("Field conditions that must all hold for the alert to fire. Values match by equality; a string starting with >, >=, <, <=, == or != compares instead (e.g. \">5000\"). Prefix a backslash to match such a string literally (\"\\\\<none>\")."),
		),
		mcp.WithArray("actions",
			mcp.Required(),
			mcp.Description("Actions executed in order when the alert fires"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type": "string",
						"enum": []string{
							string(types.AlertActionLog),
							string(types.AlertActionNotification),
							string(types.AlertActionTestAction),
						},
					},
					"message": map[string]any{"type": "string"},
					"channel": map[string]any{"type": "string"},
					"action":  map[string]any{"type": "string"},
				},
				"required": []string{"type"},
			}),
		),
	)
	s.addTool(tool, s.handleSetupAlerts)
}

func (s *Server) registerCheckAlerts() {
	tool := mcp.NewTool(ToolCheckAlerts,
		mcp.WithDescription("Evaluate the active alert rules against event data and run the actions of every rule that matches."),
		mcp.WithString("testFile",
			mcp.Description("Test file the event belongs to"),
		),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Event data the rule conditions are evaluated against"),
		),
	)
	s.addTool(tool, s.handleCheckAlerts)
}
