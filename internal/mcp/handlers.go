package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ctagard/testops-mcp/internal/analysis"
	"github.com/ctagard/testops-mcp/internal/dispatch"
	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/jsonutil"
	"github.com/ctagard/testops-mcp/internal/monitor"
	"github.com/ctagard/testops-mcp/internal/testgen"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// isoMillis matches the millisecond UTC timestamps the tools report
const isoMillis = "2006-01-02T15:04:05.000Z"

// Authoring Handlers

type generateTestCaseArgs struct {
	Scenario string `json:"scenario"`
	TestType string `json:"testType"`
	UserType string `json:"userType"`
}

func (s *Server) handleGenerateTestCase(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[generateTestCaseArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("generating test case", "testType", args.TestType, "scenario", args.Scenario)

	testCase, err := testgen.GenerateTestCase(args.Scenario, args.TestType, args.UserType)
	if err != nil {
		return "", errors.Wrap(errors.CodeInvalidArguments, err.Error(),
			"testType must be 'ui' or 'api'.", err)
	}
	return fmt.Sprintf("Generated test case for %s:\n\n%s", args.Scenario, testCase), nil
}

type generateAPITestsArgs struct {
	Endpoint string      `json:"endpoint"`
	Method   string      `json:"method"`
	TestData interface{} `json:"testData"`
}

func (s *Server) handleGenerateAPITests(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[generateAPITestsArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("generating API test", "method", args.Method, "endpoint", args.Endpoint)

	apiTest, err := testgen.GenerateAPITest(args.Endpoint, args.Method, args.TestData)
	if err != nil {
		return "", errors.Wrap(errors.CodeInvalidArguments, err.Error(),
			fmt.Sprintf("Supported methods are: %s.", strings.Join(testgen.HTTPMethods, ", ")), err)
	}
	return "Generated API test:\n\n" + apiTest, nil
}

type autoHealArgs struct {
	TestFile      string `json:"testFile"`
	BrokenLocator string `json:"brokenLocator"`
	PageURL       string `json:"pageUrl"`
}

func (s *Server) handleAutoHealLocators(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[autoHealArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("auto-healing locator", "testFile", args.TestFile, "locator", args.BrokenLocator, "pageUrl", args.PageURL)

	locators := testgen.SuggestLocators(args.BrokenLocator)
	return fmt.Sprintf("Suggested locators for %s:\n\n%s", args.BrokenLocator, strings.Join(locators, "\n")), nil
}

type analyzeFailureArgs struct {
	TestFile     string `json:"testFile"`
	FailureType  string `json:"failureType"`
	ErrorMessage string `json:"errorMessage"`
}

func (s *Server) handleAnalyzeTestFailure(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[analyzeFailureArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("analyzing failure", "testFile", args.TestFile, "failureType", args.FailureType)

	report, err := analysis.AnalyzeFailure(args.TestFile, args.FailureType, args.ErrorMessage)
	if err != nil {
		return "", err
	}
	return report.Markdown(), nil
}

// Data Handlers

type manageTestDataArgs struct {
	Action   types.DataAction       `json:"action"`
	DataType string                 `json:"dataType"`
	Data     map[string]interface{} `json:"data"`
}

func (s *Server) handleManageTestData(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[manageTestDataArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("managing test data", "action", args.Action, "dataType", args.DataType)

	switch args.Action {
	case types.DataGenerate:
		generated, err := s.data.Generate(ctx, args.DataType, args.Data)
		if err != nil {
			return "", err
		}
		return withJSON(fmt.Sprintf("Generated %s test data:", args.DataType), generated)

	case types.DataUpdate:
		merged, err := s.data.Update(ctx, args.DataType, args.Data)
		if err != nil {
			return "", err
		}
		return withJSON(fmt.Sprintf("Updated %s test data:", args.DataType), merged)

	case types.DataValidate:
		result := s.data.Validate(args.DataType, args.Data)
		return withJSON(fmt.Sprintf("Validation results for %s:", args.DataType), result)

	case types.DataBackup:
		path, err := s.data.Backup(ctx, args.DataType)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Backup created for %s at: %s", args.DataType, path), nil

	default:
		return "", errors.UnknownAction(ToolManageTestData, string(args.Action), enumOf(types.DataActions))
	}
}

type manageEnvironmentArgs struct {
	Environment string                  `json:"environment"`
	Action      types.EnvironmentAction `json:"action"`
	Config      map[string]interface{}  `json:"config"`
}

func (s *Server) handleManageEnvironment(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[manageEnvironmentArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("managing environment", "environment", args.Environment, "action", args.Action)

	switch args.Action {
	case types.EnvironmentCreate:
		env, err := s.data.CreateEnvironment(ctx, args.Environment, args.Config)
		if err != nil {
			return "", err
		}
		return withJSON("Created environment: "+args.Environment, env)

	case types.EnvironmentUpdate:
		env, err := s.data.UpdateEnvironment(ctx, args.Environment, args.Config)
		if err != nil {
			return "", err
		}
		return withJSON("Updated environment: "+args.Environment, env)

	case types.EnvironmentValidate:
		result, ok, err := s.data.ValidateEnvironment(ctx, args.Environment)
		if err != nil {
			return "", err
		}
		if !ok {
			return errors.EnvironmentNotFound(args.Environment).Message, nil
		}
		return withJSON(fmt.Sprintf("Environment validation for %s:", args.Environment), result)

	case types.EnvironmentSwitch:
		if err := s.data.SwitchEnvironment(ctx, args.Environment); err != nil {
			return "", err
		}
		return "Switched to environment: " + args.Environment, nil

	default:
		return "", errors.UnknownAction(ToolManageEnvironment, string(args.Action), enumOf(types.EnvironmentActions))
	}
}

// Monitoring Handlers

type monitorArgs struct {
	TestFile string              `json:"testFile"`
	Action   types.MonitorAction `json:"action"`
	Data     json.RawMessage     `json:"data"`
}

type stepReport struct {
	Action        string           `json:"action"`
	Status        types.StepStatus `json:"status"`
	Details       interface{}      `json:"details"`
	ExecutionTime *float64         `json:"executionTime"`
}

func (s *Server) handleMonitorTestExecution(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[monitorArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("monitoring", "action", args.Action, "testFile", args.TestFile)

	switch args.Action {
	case types.MonitorStart:
		var initial map[string]interface{}
		if len(args.Data) > 0 {
			if initial, err = dispatch.DecodeArgs[map[string]interface{}](args.Data); err != nil {
				return "", err
			}
		}
		sess := s.sessions.Start(args.TestFile, initial)
		return fmt.Sprintf("Started monitoring %s\nStart time: %s",
			args.TestFile, sess.StartTime.UTC().Format(isoMillis)), nil

	case types.MonitorUpdate:
		var report stepReport
		if len(args.Data) > 0 {
			if report, err = dispatch.DecodeArgs[stepReport](args.Data); err != nil {
				return "", err
			}
		}
		if report.Action == "" {
			return "", errors.MissingParameter("data.action", "An update records one step; name it in data.action.").
				WithDetails("tool", ToolMonitorTestExecution)
		}
		update := monitor.StepUpdate{Action: report.Action, Status: report.Status, Details: report.Details}
		if report.ExecutionTime != nil {
			ms := int64(*report.ExecutionTime)
			update.ExecutionTime = &ms
		}
		if _, err := s.sessions.Update(args.TestFile, update); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated monitoring for %s\nStatus: %s\nStep: %s",
			args.TestFile, report.Status, report.Action), nil

	case types.MonitorStop:
		sess, err := s.sessions.Stop(args.TestFile)
		if err != nil {
			return "", err
		}
		var total int64
		if sess.Metrics.TotalExecutionTimeMs != nil {
			total = *sess.Metrics.TotalExecutionTimeMs
		}
		return fmt.Sprintf("Stopped monitoring %s\nTotal execution time: %dms\nSteps completed: %d",
			args.TestFile, total, sess.Metrics.StepsCompleted), nil

	case types.MonitorStatus:
		sess, ok := s.sessions.Status(args.TestFile)
		if !ok {
			return errors.SessionNotFound(args.TestFile).Message, nil
		}
		return withJSON(fmt.Sprintf("## Monitoring Status for %s", args.TestFile), sess)

	default:
		return "", errors.UnknownAction(ToolMonitorTestExecution, string(args.Action), enumOf(types.MonitorActions))
	}
}

type insightsArgs struct {
	TestSuite string `json:"testSuite"`
	TimeRange string `json:"timeRange"`
}

func (s *Server) handleGetInsights(_ context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[insightsArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("getting insights", "testSuite", args.TestSuite, "timeRange", args.TimeRange)

	insights, err := s.sessions.Insights(args.TestSuite, args.TimeRange)
	if err != nil {
		return "", errors.Wrap(errors.CodeInvalidArguments, err.Error(),
			"Use a duration such as 30m, 1h or 7d.", err)
	}
	return insights.Markdown(), nil
}

type setupAlertsArgs struct {
	AlertType  string                 `json:"alertType"`
	Conditions map[string]interface{} `json:"conditions"`
	Actions    []types.AlertAction    `json:"actions"`
}

func (s *Server) handleSetupAlerts(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[setupAlertsArgs](raw)
	if err != nil {
		return "", err
	}
	s.logger.Info("setting up alert", "alertType", args.AlertType)

	rule, err := s.alerts.Setup(ctx, args.AlertType, args.Conditions, args.Actions)
	if err != nil {
		return "", err
	}
	return withJSON("Alert setup complete:", rule)
}

type checkAlertsArgs struct {
	TestFile string                 `json:"testFile"`
	Data     map[string]interface{} `json:"data"`
}

func (s *Server) handleCheckAlerts(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := dispatch.DecodeArgs[checkAlertsArgs](raw)
	if err != nil {
		return "", err
	}

	triggered, err := s.alerts.Check(ctx, args.TestFile, args.Data)
	if err != nil {
		return "", err
	}
	subject := args.TestFile
	if subject == "" {
		subject = "event"
	}
	if len(triggered) == 0 {
		return fmt.Sprintf("No alerts triggered for %s", subject), nil
	}
	return withJSON(fmt.Sprintf("Triggered %d alert(s) for %s:", len(triggered), subject), triggered)
}

// withJSON renders "<heading>\n\n<indented JSON of v>"
func withJSON(heading string, v interface{}) (string, error) {
	body, err := jsonutil.Pretty(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return heading + "\n\n" + body, nil
}

// formatStepTime renders a step timestamp for the execution log
func formatStepTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
