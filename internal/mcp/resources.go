package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/testops-mcp/internal/jsonutil"
	"github.com/ctagard/testops-mcp/internal/monitor"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// Resource URIs
const (
	ResourceLatestResults = "test-results://latest"
	ResourceTestData      = "config://test-data"
	ResourceExecutionLogs = "logs://execution"
)

// ResourceURIs lists every resource the server can read
var ResourceURIs = []string{ResourceLatestResults, ResourceTestData, ResourceExecutionLogs}

// LatestResults is the body of test-results://latest
type LatestResults struct {
	TotalTests    int    `json:"totalTests"`
	Passed        int    `json:"passed"`
	Failed        int    `json:"failed"`
	Running       int    `json:"running"`
	Skipped       int    `json:"skipped"`
	ExecutionTime string `json:"executionTime"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.NewResource(ResourceLatestResults, "Latest test results",
			mcp.WithResourceDescription("Pass/fail totals of the monitored test runs"),
			mcp.WithMIMEType("application/json"),
		),
		s.readLatestResults,
	)
	s.mcpServer.AddResource(
		mcp.NewResource(ResourceTestData, "Test data",
			mcp.WithResourceDescription("The testData section of the test data document"),
			mcp.WithMIMEType("application/json"),
		),
		s.readTestData,
	)
	s.mcpServer.AddResource(
		mcp.NewResource(ResourceExecutionLogs, "Execution logs",
			mcp.WithResourceDescription("Step events of every monitored run, oldest first"),
			mcp.WithMIMEType("text/plain"),
		),
		s.readExecutionLogs,
	)
}

func isKnownResource(uri string) bool {
	for _, u := range ResourceURIs {
		if u == uri {
			return true
		}
	}
	return false
}

func (s *Server) readLatestResults(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	text, err := jsonutil.Pretty(latestResults(s.sessions.List()))
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "application/json", Text: text},
	}, nil
}

// latestResults counts a completed run without errors as passed and one
// with errors as failed. ExecutionTime sums the finished runs.
func latestResults(sessions []types.Session) LatestResults {
	var out LatestResults
	var totalMs int64
	for _, sess := range sessions {
		out.TotalTests++
		switch {
		case sess.Status == types.SessionStatusRunning:
			out.Running++
		case sess.Metrics.Errors > 0 || sess.Status == types.SessionStatusError:
			out.Failed++
		default:
			out.Passed++
		}
		if sess.Metrics.TotalExecutionTimeMs != nil {
			totalMs += *sess.Metrics.TotalExecutionTimeMs
		}
	}
	out.ExecutionTime = monitor.FormatDuration(totalMs)
	return out
}

func (s *Server) readTestData(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc, err := s.data.Load(ctx)
	if err != nil {
		return nil, err
	}
	text, err := jsonutil.Pretty(doc.TestData)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "application/json", Text: text},
	}, nil
}

type logLine struct {
	sess types.Session
	step types.StepEvent
}

func (s *Server) readExecutionLogs(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "text/plain", Text: executionLog(s.sessions.List())},
	}, nil
}

func executionLog(sessions []types.Session) string {
	var lines []logLine
	for _, sess := range sessions {
		for _, step := range sess.Steps {
			lines = append(lines, logLine{sess: sess, step: step})
		}
	}
	if len(lines) == 0 {
		return "No execution logs recorded"
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].step.Timestamp.Before(lines[j].step.Timestamp)
	})

	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s [%s] %s: %s", formatStepTime(l.step.Timestamp), l.sess.TestFile, l.step.Action, l.step.Status)
		if l.step.Details != nil {
			fmt.Fprintf(&b, " %v", l.step.Details)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
