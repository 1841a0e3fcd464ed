package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/testops-mcp/internal/testgen"
)

// Prompt names
const (
	PromptGenerateLoginTest     = "generate_login_test"
	PromptAnalyzeFailurePattern = "analyze_failure_pattern"
)

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(
		mcp.NewPrompt(PromptGenerateLoginTest,
			mcp.WithPromptDescription("Generate a login test case based on existing patterns"),
			mcp.WithArgument("userType",
				mcp.ArgumentDescription("Test data user: valid, invalid or new"),
			),
			mcp.WithArgument("scenario",
				mcp.ArgumentDescription("Test scenario description"),
			),
		),
		s.getGenerateLoginTest,
	)
	s.mcpServer.AddPrompt(
		mcp.NewPrompt(PromptAnalyzeFailurePattern,
			mcp.WithPromptDescription("Analyze test failure patterns and suggest fixes"),
			mcp.WithArgument("testFile",
				mcp.ArgumentDescription("Path to test file"),
				mcp.RequiredArgument(),
			),
			mcp.WithArgument("failureType",
				mcp.ArgumentDescription("Failure category: timeout, assertion or element_not_found"),
			),
		),
		s.getAnalyzeFailurePattern,
	)
}

func (s *Server) getGenerateLoginTest(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	userType := request.Params.Arguments["userType"]
	if userType == "" {
		userType = testgen.DefaultUserType
	}
	scenario := request.Params.Arguments["scenario"]
	if scenario == "" {
		scenario = fmt.Sprintf("Login with %s credentials", userType)
	}

	text := fmt.Sprintf(
		"Generate a Playwright login test for a %s user.\n\nScenario: %s\n\n"+
			"Call the %s tool with scenario %q and userType %q, then adapt the generated steps "+
			"to the login page objects used by the existing tests.",
		userType, scenario, ToolGenerateTestCase, scenario, userType)

	return mcp.NewGetPromptResult(
		"Generate a login test case based on existing patterns",
		[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))},
	), nil
}

func (s *Server) getAnalyzeFailurePattern(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	testFile := request.Params.Arguments["testFile"]
	if testFile == "" {
		return nil, fmt.Errorf("testFile argument is required")
	}
	failureType := request.Params.Arguments["failureType"]
	if failureType == "" {
		failureType = "unknown"
	}

	text := fmt.Sprintf(
		"Analyze the recurring %s failures in %s.\n\n"+
			"Call the %s tool with testFile %q and failureType %q, check %s for the runs "+
			"of this test, and propose concrete fixes for the test code.",
		failureType, testFile, ToolAnalyzeTestFailure, testFile, failureType, ResourceExecutionLogs)

	return mcp.NewGetPromptResult(
		"Analyze test failure patterns and suggest fixes",
		[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))},
	), nil
}
