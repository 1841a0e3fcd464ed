// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// The server exposes test automation capabilities as MCP tools:
//
// Authoring:
//   - generate_test_case: Render a Playwright UI or API test skeleton
//   - generate_api_tests: Render a request test for one endpoint
//   - auto_heal_locators: Suggest replacement locators for a broken one
//   - analyze_test_failure: Diagnose a failure and suggest fixes
//
// Data:
//   - manage_test_data: Generate, update, validate and back up test data
//   - manage_environment: Create, update, validate and switch environments
//
// Monitoring:
//   - monitor_test_execution: Start, update, stop and inspect test runs
//   - get_insights: Summarize monitored runs
//   - setup_alerts: Persist an alert rule
//   - check_alerts: Evaluate alert rules against event data
//
// Tool calls go through a dispatch.Registry, which validates arguments
// against each tool's input schema. Everything else (initialize, tools/list,
// resources and prompts) is answered by mcp-go.
package mcp

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/testops-mcp/internal/config"
	"github.com/ctagard/testops-mcp/internal/dispatch"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/internal/metrics"
	"github.com/ctagard/testops-mcp/internal/monitor"
	"github.com/ctagard/testops-mcp/internal/testdata"
	"github.com/ctagard/testops-mcp/internal/version"
)

// Server wraps the MCP server with the test automation tools
type Server struct {
	mcpServer *server.MCPServer
	registry  *dispatch.Registry

	sessions *monitor.Store
	alerts   *monitor.AlertManager
	data     *testdata.Store

	config   *config.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	now      func() time.Time
	notifier AlertSink
}

// AlertSink receives the notification and test_action actions of triggered
// alerts
type AlertSink interface {
	monitor.Notifier
	monitor.TestActionRunner
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger shared by the server's components
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics replaces the server's metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces time.Now in the session store, alert manager and data store
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithNotifier delivers alert notifications and test actions through n
// instead of logging them
func WithNotifier(n AlertSink) Option {
	return func(s *Server) { s.notifier = n }
}

// NewServer creates a testops MCP server
func NewServer(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.mcpServer = server.NewMCPServer(
		version.ServerName,
		version.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	s.registry = dispatch.NewRegistry(s.logger, s.metrics)

	s.sessions = monitor.NewStore(
		monitor.WithClock(s.now),
		monitor.WithStoreLogger(s.logger),
		monitor.WithStoreMetrics(s.metrics),
	)

	alertOpts := []monitor.AlertOption{
		monitor.WithLockTimeout(cfg.LockTimeout),
		monitor.WithAlertLogger(s.logger),
		monitor.WithAlertMetrics(s.metrics),
		monitor.WithAlertClock(s.now),
	}
	if s.notifier != nil {
		alertOpts = append(alertOpts,
			monitor.WithNotifier(s.notifier),
			monitor.WithTestActionRunner(s.notifier))
	}
	s.alerts = monitor.NewAlertManager(cfg.AlertsFile, alertOpts...)

	s.data = testdata.NewStore(cfg.DataFile, cfg.BackupDir,
		testdata.WithLockTimeout(cfg.LockTimeout),
		testdata.WithLogger(s.logger),
		testdata.WithClock(s.now),
	)

	s.logger = logging.Component(s.logger, "server")

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Registry returns the tool registry
func (s *Server) Registry() *dispatch.Registry {
	return s.registry
}

// Sessions returns the monitoring session store
func (s *Server) Sessions() *monitor.Store {
	return s.sessions
}

// Metrics returns the server's metrics collector
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() *config.Config {
	return s.config
}
