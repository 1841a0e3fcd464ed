package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/filelock"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/internal/metrics"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// maxHistory bounds the in-memory list of triggered alerts
const maxHistory = 500

// Notifier delivers notification actions, e.g. to a chat channel
type Notifier interface {
	Notify(ctx context.Context, channel, message string, data map[string]interface{}) error
}

// TestActionRunner executes test_action actions
type TestActionRunner interface {
	RunTestAction(ctx context.Context, action string, data map[string]interface{}) error
}

// logNotifier is the default Notifier and TestActionRunner: it only logs
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(_ context.Context, channel, message string, data map[string]interface{}) error {
	n.logger.Info("notification sent", "channel", channel, "message", message, "data", data)
	return nil
}

func (n logNotifier) RunTestAction(_ context.Context, action string, data map[string]interface{}) error {
	n.logger.Info("test action executed", "action", action, "data", data)
	return nil
}

// AlertManager persists alert rules in a JSON array file and evaluates them
// against event data
type AlertManager struct {
	path        string
	lockTimeout time.Duration

	evaluator *conditionEvaluator
	notifier  Notifier
	runner    TestActionRunner

	history []types.TriggeredAlert
	mu      sync.Mutex

	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// AlertOption configures an AlertManager
type AlertOption func(*AlertManager)

// WithNotifier sets where notification actions go
func WithNotifier(n Notifier) AlertOption {
	return func(m *AlertManager) { m.notifier = n }
}

// WithTestActionRunner sets what runs test_action actions
func WithTestActionRunner(r TestActionRunner) AlertOption {
	return func(m *AlertManager) { m.runner = r }
}

// WithLockTimeout bounds the wait for the alerts file lock
func WithLockTimeout(d time.Duration) AlertOption {
	return func(m *AlertManager) { m.lockTimeout = d }
}

// WithAlertLogger sets the manager's logger
func WithAlertLogger(l *slog.Logger) AlertOption {
	return func(m *AlertManager) { m.logger = l }
}

// WithAlertMetrics counts triggered alerts in m
func WithAlertMetrics(mt *metrics.Metrics) AlertOption {
	return func(m *AlertManager) { m.metrics = mt }
}

// WithAlertClock replaces time.Now
func WithAlertClock(now func() time.Time) AlertOption {
	return func(m *AlertManager) { m.now = now }
}

// NewAlertManager creates a manager backed by the JSON file at path
func NewAlertManager(path string, opts ...AlertOption) *AlertManager {
	m := &AlertManager{
		path:        path,
		lockTimeout: filelock.DefaultTimeout,
		evaluator:   newConditionEvaluator(),
		now:         time.Now,
		newID:       func() string { return "alert_" + uuid.NewString() },
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Component(m.logger, "alerts")
	if m.notifier == nil {
		m.notifier = logNotifier{logger: m.logger}
	}
	if m.runner == nil {
		m.runner = logNotifier{logger: m.logger}
	}
	return m
}

// Setup appends an active rule to the alerts file and returns it
func (m *AlertManager) Setup(ctx context.Context, alertType string, conditions map[string]interface{}, actions []types.AlertAction) (types.AlertRule, error) {
	if conditions == nil {
		conditions = map[string]interface{}{}
	}
	if actions == nil {
		actions = []types.AlertAction{}
	}
	rule := types.AlertRule{
		ID:         m.newID(),
		Type:       alertType,
		Conditions: conditions,
		Actions:    actions,
		Status:     types.AlertActive,
		CreatedAt:  m.now().UTC(),
	}

	err := filelock.WithLock(ctx, m.path, m.lockTimeout, func() error {
		rules, err := m.readRules()
		if err != nil {
			return err
		}
		rules = append(rules, rule)
		return m.writeRules(rules)
	})
	if err != nil {
		return types.AlertRule{}, err
	}

	m.logger.Info("alert created", "id", rule.ID, "type", alertType)
	return rule, nil
}

// Rules returns every persisted rule
func (m *AlertManager) Rules(ctx context.Context) ([]types.AlertRule, error) {
	var rules []types.AlertRule
	err := filelock.WithReadLock(ctx, m.path, m.lockTimeout, func() error {
		var err error
		rules, err = m.readRules()
		return err
	})
	return rules, err
}

// Check evaluates every active rule against data, runs the actions of each
// match in order and returns the matches. A missing alerts file means no rules.
func (m *AlertManager) Check(ctx context.Context, testFile string, data map[string]interface{}) ([]types.TriggeredAlert, error) {
	rules, err := m.Rules(ctx)
	if err != nil {
		return nil, err
	}

	triggered := []types.TriggeredAlert{}
	for _, rule := range rules {
		if rule.Status != types.AlertActive {
			continue
		}
		if !m.evaluator.Match(rule.Conditions, data) {
			continue
		}

		t := types.TriggeredAlert{
			Alert:       rule,
			TestFile:    testFile,
			TriggeredAt: m.now().UTC(),
			Data:        copyMap(data),
		}
		triggered = append(triggered, t)
		m.metrics.AlertTriggered(rule.Type)
		m.execute(ctx, rule, data)
	}

	if len(triggered) > 0 {
		m.record(triggered)
	}
	return triggered, nil
}

// History returns the most recent triggered alerts, oldest first
func (m *AlertManager) History() []types.TriggeredAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.TriggeredAlert, len(m.history))
	copy(out, m.history)
	return out
}

func (m *AlertManager) record(triggered []types.TriggeredAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, triggered...)
	if over := len(m.history) - maxHistory; over > 0 {
		m.history = append([]types.TriggeredAlert(nil), m.history[over:]...)
	}
}

// execute runs a rule's actions in order. A failing action is logged and
// does not stop the rest.
func (m *AlertManager) execute(ctx context.Context, rule types.AlertRule, data map[string]interface{}) {
	for _, action := range rule.Actions {
		var err error
		switch action.Type {
		case types.AlertActionLog:
			m.logger.Warn(fmt.Sprintf("Alert triggered: %s", action.Message), "alert", rule.ID, "data", data)
		case types.AlertActionNotification:
			err = m.notifier.Notify(ctx, action.Channel, action.Message, data)
		case types.AlertActionTestAction:
			err = m.runner.RunTestAction(ctx, action.Action, data)
		default:
			m.logger.Debug("skipping unknown alert action", "alert", rule.ID, "type", action.Type)
		}
		if err != nil {
			m.logger.Warn("alert action failed", "alert", rule.ID, "type", action.Type, "error", err)
		}
	}
}

func (m *AlertManager) readRules() ([]types.AlertRule, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return []types.AlertRule{}, nil
	}
	if err != nil {
		return nil, errors.StorageFailed("read", m.path, err)
	}
	var rules []types.AlertRule
	if len(data) == 0 {
		return []types.AlertRule{}, nil
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.StorageFailed("parse", m.path, err)
	}
	return rules, nil
}

func (m *AlertManager) writeRules(rules []types.AlertRule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return errors.StorageFailed("encode", m.path, err)
	}
	if err := filelock.WriteFile(m.path, data, 0o644); err != nil {
		return errors.StorageFailed("write", m.path, err)
	}
	return nil
}
