package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/internal/metrics"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// fakeClock advances by step on every reading
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func int64p(v int64) *int64 { return &v }

func TestStore_UpdateCountsByStatus(t *testing.T) {
	s := NewStore()
	s.Start("t1", nil)

	statuses := []types.StepStatus{
		types.StepStatusCompleted,
		types.StepStatusCompleted,
		types.StepStatusError,
		types.StepStatusWarning,
		"skipped",
		types.StepStatusCompleted,
	}
	for i, st := range statuses {
		_, err := s.Update("t1", StepUpdate{Action: fmt.Sprintf("step%d", i), Status: st})
		require.NoError(t, err)
	}

	sess, err := s.Stop("t1")
	require.NoError(t, err)

	assert.Equal(t, 3, sess.Metrics.StepsCompleted)
	assert.Equal(t, 1, sess.Metrics.Errors)
	assert.Equal(t, 1, sess.Metrics.Warnings)
	assert.LessOrEqual(t, sess.Metrics.StepsCompleted+sess.Metrics.Errors+sess.Metrics.Warnings, len(statuses))
	assert.Len(t, sess.Steps, len(statuses))
	assert.Equal(t, types.StepStatus("skipped"), sess.Steps[4].Status)
}

func TestStore_ErrorStepKeepsSessionRunning(t *testing.T) {
	s := NewStore()
	s.Start("t1", nil)

	sess, err := s.Update("t1", StepUpdate{Action: "login", Status: types.StepStatusError})
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusRunning, sess.Status)
}

func TestStore_UnknownSession(t *testing.T) {
	s := NewStore()

	_, err := s.Update("ghost", StepUpdate{Action: "x", Status: types.StepStatusCompleted})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeSessionNotFound))
	assert.Contains(t, err.Error(), "No monitoring session found for ghost")

	_, err = s.Stop("ghost")
	assert.True(t, errors.Is(err, errors.CodeSessionNotFound))

	_, ok := s.Status("ghost")
	assert.False(t, ok)
}

func TestStore_RestartDiscardsPreviousSession(t *testing.T) {
	s := NewStore()
	s.Start("t1", map[string]interface{}{"browser": "chromium"})
	_, err := s.Update("t1", StepUpdate{Action: "a", Status: types.StepStatusCompleted})
	require.NoError(t, err)

	s.Start("t1", nil)

	sess, ok := s.Status("t1")
	require.True(t, ok)
	assert.Empty(t, sess.Steps)
	assert.Equal(t, types.Metrics{}, sess.Metrics)
	assert.Nil(t, sess.InitialData)
}

func TestStore_StatusAfterUpdate(t *testing.T) {
	s := NewStore()
	s.Start("t1", map[string]interface{}{})
	_, err := s.Update("t1", StepUpdate{Action: "step1", Status: types.StepStatusCompleted})
	require.NoError(t, err)

	sess, ok := s.Status("t1")
	require.True(t, ok)
	assert.Equal(t, 1, sess.Metrics.StepsCompleted)
	require.Len(t, sess.Steps, 1)
	assert.Equal(t, "step1", sess.Steps[0].Action)
}

func TestStore_StopComputesTotalTime(t *testing.T) {
	clock := newFakeClock(0)
	s := NewStore(WithClock(clock.Now))

	start := s.Start("t1", nil)
	clock.Advance(1500 * time.Millisecond)
	_, err := s.Update("t1", StepUpdate{Action: "a", Status: types.StepStatusCompleted, ExecutionTime: int64p(1200)})
	require.NoError(t, err)
	clock.Advance(time.Second)

	sess, err := s.Stop("t1")
	require.NoError(t, err)

	assert.Equal(t, types.SessionStatusCompleted, sess.Status)
	require.NotNil(t, sess.EndTime)
	assert.Equal(t, start.StartTime.Add(2500*time.Millisecond), *sess.EndTime)
	require.NotNil(t, sess.Metrics.TotalExecutionTimeMs)
	assert.Equal(t, int64(2500), *sess.Metrics.TotalExecutionTimeMs)
	assert.Equal(t, int64(1200), sess.Metrics.ExecutionTimeMs)
}

func TestStore_SnapshotsAreIndependent(t *testing.T) {
	s := NewStore()
	s.Start("t1", map[string]interface{}{"tags": []interface{}{"smoke"}})
	_, err := s.Update("t1", StepUpdate{
		Action:  "a",
		Status:  types.StepStatusCompleted,
		Details: map[string]interface{}{"selector": "#login"},
	})
	require.NoError(t, err)

	snap, _ := s.Status("t1")
	snap.Steps[0].Details.(map[string]interface{})["selector"] = "mutated"
	snap.InitialData["tags"].([]interface{})[0] = "mutated"
	snap.Steps = append(snap.Steps, types.StepEvent{Action: "extra"})

	fresh, _ := s.Status("t1")
	want := map[string]interface{}{"selector": "#login"}
	if diff := cmp.Diff(want, fresh.Steps[0].Details); diff != "" {
		t.Errorf("stored details changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, "smoke", fresh.InitialData["tags"].([]interface{})[0])
	assert.Len(t, fresh.Steps, 1)
}

func TestStore_ConcurrentDifferentKeys(t *testing.T) {
	s := NewStore()
	const files, updates = 8, 50

	for f := 0; f < files; f++ {
		s.Start(fmt.Sprintf("t%d", f), nil)
	}

	var wg sync.WaitGroup
	for f := 0; f < files; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			key := fmt.Sprintf("t%d", f)
			for i := 0; i < updates; i++ {
				_, err := s.Update(key, StepUpdate{Action: fmt.Sprintf("step%d", i), Status: types.StepStatusCompleted})
				assert.NoError(t, err)
			}
		}(f)
	}
	wg.Wait()

	for _, sess := range s.List() {
		assert.Equal(t, updates, sess.Metrics.StepsCompleted, sess.TestFile)
		// a single writer per key keeps submission order
		for i, step := range sess.Steps {
			assert.Equal(t, fmt.Sprintf("step%d", i), step.Action)
		}
	}
}

func TestStore_ConcurrentSameKeyNoLostUpdates(t *testing.T) {
	s := NewStore()
	s.Start("shared", nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update("shared", StepUpdate{Action: "tick", Status: types.StepStatusWarning})
		}()
	}
	wg.Wait()

	sess, _ := s.Status("shared")
	assert.Equal(t, 100, sess.Metrics.Warnings)
	assert.Len(t, sess.Steps, 100)
}

func TestStore_ListSorted(t *testing.T) {
	s := NewStore()
	s.Start("b.spec.ts", nil)
	s.Start("a.spec.ts", nil)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a.spec.ts", list[0].TestFile)
	assert.Equal(t, "b.spec.ts", list[1].TestFile)
}

func TestStore_SessionGauge(t *testing.T) {
	m := metrics.New()
	s := NewStore(WithStoreMetrics(m))

	s.Start("t1", nil)
	s.Start("t2", nil)
	_, err := s.Stop("t1")
	require.NoError(t, err)
	s.Start("t1", nil) // completed -> running

	got := map[string]float64{}
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "testops_monitoring_sessions" {
			continue
		}
		for _, metric := range f.GetMetric() {
			got[metric.GetLabel()[0].GetValue()] = metric.GetGauge().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"running": 2, "completed": 0}, got)
}
