// Package monitor tracks test runs and evaluates alert rules against their
// events.
//
// A Store holds one session per test file. Sessions move from running to
// completed and are never deleted; a new start for the same test file
// replaces the old record. Each session has its own mutex, so updates for
// different test files never contend and updates for the same test file
// append steps in lock acquisition order.
package monitor

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/internal/metrics"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// StepUpdate is one progress report for a running test
type StepUpdate struct {
	Action        string
	Status        types.StepStatus
	Details       interface{}
	ExecutionTime *int64
}

type session struct {
	mu  sync.Mutex
	rec types.Session
}

// Store is the in-memory session table
type Store struct {
	sessions map[string]*session
	mu       sync.RWMutex

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreLogger sets the store's logger
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithStoreMetrics reports session status changes to m
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty session store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		now:      time.Now,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "monitor")
	return s
}

// Start creates a running session for testFile, discarding any previous one
func (s *Store) Start(testFile string, initialData map[string]interface{}) types.Session {
	sess := &session{rec: types.Session{
		TestFile:    testFile,
		StartTime:   s.now().UTC(),
		Status:      types.SessionStatusRunning,
		Steps:       []types.StepEvent{},
		InitialData: copyMap(initialData),
	}}

	s.mu.Lock()
	prev := s.sessions[testFile]
	s.sessions[testFile] = sess
	s.mu.Unlock()

	prevStatus := ""
	if prev != nil {
		prev.mu.Lock()
		prevStatus = string(prev.rec.Status)
		prev.mu.Unlock()
		s.logger.Debug("replacing session", "testFile", testFile, "previousStatus", prevStatus)
	}
	s.metrics.SessionTransition(prevStatus, string(types.SessionStatusRunning))

	s.logger.Info("monitoring started", "testFile", testFile)
	return snapshot(&sess.rec)
}

// Update appends a step to the session for testFile and bumps the counter
// matching its status. A step with status error does not end the session.
func (s *Store) Update(testFile string, u StepUpdate) (types.Session, error) {
	sess := s.get(testFile)
	if sess == nil {
		return types.Session{}, errors.SessionNotFound(testFile)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.rec.Steps = append(sess.rec.Steps, types.StepEvent{
		Timestamp: s.now().UTC(),
		Action:    u.Action,
		Status:    u.Status,
		Details:   copyValue(u.Details),
	})
	if u.ExecutionTime != nil {
		sess.rec.Metrics.ExecutionTimeMs = *u.ExecutionTime
	}
	switch u.Status {
	case types.StepStatusCompleted:
		sess.rec.Metrics.StepsCompleted++
	case types.StepStatusError:
		sess.rec.Metrics.Errors++
	case types.StepStatusWarning:
		sess.rec.Metrics.Warnings++
	}

	s.logger.Debug("monitoring updated", "testFile", testFile, "action", u.Action, "status", u.Status)
	return snapshot(&sess.rec), nil
}

// Stop completes the session for testFile and freezes its total time
func (s *Store) Stop(testFile string) (types.Session, error) {
	sess := s.get(testFile)
	if sess == nil {
		return types.Session{}, errors.SessionNotFound(testFile)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	prevStatus := sess.rec.Status
	end := s.now().UTC()
	total := end.Sub(sess.rec.StartTime).Milliseconds()
	sess.rec.Status = types.SessionStatusCompleted
	sess.rec.EndTime = &end
	sess.rec.Metrics.TotalExecutionTimeMs = &total

	s.metrics.SessionTransition(string(prevStatus), string(types.SessionStatusCompleted))
	s.logger.Info("monitoring stopped", "testFile", testFile, "totalMs", total, "steps", sess.rec.Metrics.StepsCompleted)
	return snapshot(&sess.rec), nil
}

// Status returns a copy of the session for testFile
func (s *Store) Status(testFile string) (types.Session, bool) {
	sess := s.get(testFile)
	if sess == nil {
		return types.Session{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return snapshot(&sess.rec), true
}

// List returns copies of every session, ordered by test file
func (s *Store) List() []types.Session {
	s.mu.RLock()
	held := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		held = append(held, sess)
	}
	s.mu.RUnlock()

	out := make([]types.Session, 0, len(held))
	for _, sess := range held {
		sess.mu.Lock()
		out = append(out, snapshot(&sess.rec))
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestFile < out[j].TestFile })
	return out
}

func (s *Store) get(testFile string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[testFile]
}

// snapshot deep-copies a session record. Callers hold the session lock.
func snapshot(rec *types.Session) types.Session {
	out := *rec
	out.Steps = make([]types.StepEvent, len(rec.Steps))
	for i, step := range rec.Steps {
		step.Details = copyValue(step.Details)
		out.Steps[i] = step
	}
	if rec.EndTime != nil {
		end := *rec.EndTime
		out.EndTime = &end
	}
	if rec.Metrics.TotalExecutionTimeMs != nil {
		total := *rec.Metrics.TotalExecutionTimeMs
		out.Metrics.TotalExecutionTimeMs = &total
	}
	out.InitialData = copyMap(rec.InitialData)
	return out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue copies the containers produced by JSON decoding; scalars are
// returned as is
func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
