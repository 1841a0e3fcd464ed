package client

import (
	"context"

	"github.com/ctagard/testops-mcp/pkg/types"
)

// Tool names, as registered by the server
const (
	toolGenerateTestCase     = "generate_test_case"
	toolAnalyzeTestFailure   = "analyze_test_failure"
	toolManageTestData       = "manage_test_data"
	toolMonitorTestExecution = "monitor_test_execution"
	toolAutoHealLocators     = "auto_heal_locators"
	toolGenerateAPITests     = "generate_api_tests"
	toolManageEnvironment    = "manage_environment"
	toolGetInsights          = "get_insights"
	toolSetupAlerts          = "setup_alerts"
	toolCheckAlerts          = "check_alerts"
)

// GenerateTestCase renders a test skeleton. Empty testType and userType
// default to "ui" and "valid".
func (c *Client) GenerateTestCase(ctx context.Context, scenario, testType, userType string) (string, error) {
	if testType == "" {
		testType = "ui"
	}
	if userType == "" {
		userType = "valid"
	}
	return c.callText(ctx, toolGenerateTestCase, "Failed to generate test case", map[string]interface{}{
		"scenario": scenario,
		"testType": testType,
		"userType": userType,
	})
}

// AnalyzeFailure diagnoses a failed test
func (c *Client) AnalyzeFailure(ctx context.Context, testFile, failureType, errorMessage string) (string, error) {
	return c.callText(ctx, toolAnalyzeTestFailure, "Failed to analyze failure", map[string]interface{}{
		"testFile":     testFile,
		"failureType":  failureType,
		"errorMessage": errorMessage,
	})
}

// AutoHealLocators suggests replacements for a broken locator
func (c *Client) AutoHealLocators(ctx context.Context, testFile, brokenLocator, pageURL string) (string, error) {
	return c.callText(ctx, toolAutoHealLocators, "Failed to auto-heal locators", map[string]interface{}{
		"testFile":      testFile,
		"brokenLocator": brokenLocator,
		"pageUrl":       pageURL,
	})
}

// GenerateAPITests renders a request test for one endpoint
func (c *Client) GenerateAPITests(ctx context.Context, endpoint, method string, testData interface{}) (string, error) {
	args := map[string]interface{}{
		"endpoint": endpoint,
		"method":   method,
	}
	if testData != nil {
		args["testData"] = testData
	}
	return c.callText(ctx, toolGenerateAPITests, "Failed to generate API tests", args)
}

// ManageTestData generates, updates, validates or backs up test data
func (c *Client) ManageTestData(ctx context.Context, action types.DataAction, dataType string, data map[string]interface{}) (string, error) {
	return c.callText(ctx, toolManageTestData, "Failed to manage test data", map[string]interface{}{
		"action":   action,
		"dataType": dataType,
		"data":     orEmpty(data),
	})
}

// ManageEnvironment creates, updates, validates or switches an environment
func (c *Client) ManageEnvironment(ctx context.Context, environment string, action types.EnvironmentAction, config map[string]interface{}) (string, error) {
	return c.callText(ctx, toolManageEnvironment, "Failed to manage environment", map[string]interface{}{
		"environment": environment,
		"action":      action,
		"config":      orEmpty(config),
	})
}

// StartMonitoring opens a monitoring session for testFile
func (c *Client) StartMonitoring(ctx context.Context, testFile string, data map[string]interface{}) (string, error) {
	return c.callText(ctx, toolMonitorTestExecution, "Failed to start monitoring", map[string]interface{}{
		"testFile": testFile,
		"action":   types.MonitorStart,
		"data":     orEmpty(data),
	})
}

// UpdateMonitoring records a step. Keys in data (status, details,
// executionTime) are sent alongside the step action; an "action" key in
// data takes precedence.
func (c *Client) UpdateMonitoring(ctx context.Context, testFile, action string, data map[string]interface{}) (string, error) {
	step := map[string]interface{}{"action": action}
	for k, v := range data {
		step[k] = v
	}
	return c.callText(ctx, toolMonitorTestExecution, "Failed to update monitoring", map[string]interface{}{
		"testFile": testFile,
		"action":   types.MonitorUpdate,
		"data":     step,
	})
}

// StopMonitoring closes the monitoring session for testFile
func (c *Client) StopMonitoring(ctx context.Context, testFile string) (string, error) {
	return c.callText(ctx, toolMonitorTestExecution, "Failed to stop monitoring", map[string]interface{}{
		"testFile": testFile,
		"action":   types.MonitorStop,
	})
}

// MonitoringStatus describes the monitoring session for testFile
func (c *Client) MonitoringStatus(ctx context.Context, testFile string) (string, error) {
	return c.callText(ctx, toolMonitorTestExecution, "Failed to get monitoring status", map[string]interface{}{
		"testFile": testFile,
		"action":   types.MonitorStatus,
	})
}

// GetInsights summarizes monitored runs. An empty timeRange means "1h".
func (c *Client) GetInsights(ctx context.Context, testSuite, timeRange string) (string, error) {
	if timeRange == "" {
		timeRange = "1h"
	}
	return c.callText(ctx, toolGetInsights, "Failed to get insights", map[string]interface{}{
		"testSuite": testSuite,
		"timeRange": timeRange,
	})
}

// SetupAlerts persists an alert rule
func (c *Client) SetupAlerts(ctx context.Context, alertType string, conditions map[string]interface{}, actions []types.AlertAction) (string, error) {
	if actions == nil {
		actions = []types.AlertAction{}
	}
	return c.callText(ctx, toolSetupAlerts, "Failed to set up alerts", map[string]interface{}{
		"alertType":  alertType,
		"conditions": orEmpty(conditions),
		"actions":    actions,
	})
}

// CheckAlerts evaluates the active alert rules against data
func (c *Client) CheckAlerts(ctx context.Context, testFile string, data map[string]interface{}) (string, error) {
	return c.callText(ctx, toolCheckAlerts, "Failed to check alerts", map[string]interface{}{
		"testFile": testFile,
		"data":     orEmpty(data),
	})
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
