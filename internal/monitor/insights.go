package monitor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ctagard/testops-mcp/pkg/types"
)

// DefaultTimeRange is the insight window when none is given
const DefaultTimeRange = "1h"

// FailurePattern counts error steps sharing an action label
type FailurePattern struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Insights summarizes the sessions of one suite within a time window
type Insights struct {
	TestSuite          string           `json:"testSuite"`
	TimeRange          string           `json:"timeRange"`
	Sessions           int              `json:"sessions"`
	Running            int              `json:"running"`
	Completed          int              `json:"completed"`
	AverageExecutionMs int64            `json:"averageExecutionMs"`
	SuccessRate        float64          `json:"successRate"`
	TestsWithErrors    int              `json:"testsWithErrors"`
	TotalSteps         int              `json:"totalSteps"`
	TotalErrors        int              `json:"totalErrors"`
	TotalWarnings      int              `json:"totalWarnings"`
	FailurePatterns    []FailurePattern `json:"failurePatterns"`
	Recommendations    []string         `json:"recommendations"`
}

// ParseTimeRange accepts Go durations plus a day suffix, e.g. "7d"
func ParseTimeRange(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultTimeRange
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid time range %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid time range %q", s)
	}
	return d, nil
}

// matchesSuite selects sessions whose test file mentions the suite name.
// An empty suite, "all" or "*" selects everything.
func matchesSuite(testFile, suite string) bool {
	switch suite {
	case "", "all", "*":
		return true
	}
	return strings.Contains(testFile, suite)
}

// Insights derives suite statistics from sessions started within timeRange
func (s *Store) Insights(testSuite, timeRange string) (Insights, error) {
	window, err := ParseTimeRange(timeRange)
	if err != nil {
		return Insights{}, err
	}
	if timeRange == "" {
		timeRange = DefaultTimeRange
	}
	since := s.now().UTC().Add(-window)

	in := Insights{TestSuite: testSuite, TimeRange: timeRange}
	var totalMs int64
	var clean int
	byAction := map[string]int{}

	for _, sess := range s.List() {
		if sess.StartTime.Before(since) || !matchesSuite(sess.TestFile, testSuite) {
			continue
		}
		in.Sessions++
		in.TotalSteps += len(sess.Steps)
		in.TotalErrors += sess.Metrics.Errors
		in.TotalWarnings += sess.Metrics.Warnings
		if sess.Metrics.Errors > 0 {
			in.TestsWithErrors++
		}
		for _, step := range sess.Steps {
			if step.Status == types.StepStatusError {
				byAction[step.Action]++
			}
		}

		switch sess.Status {
		case types.SessionStatusCompleted:
			in.Completed++
			if sess.Metrics.TotalExecutionTimeMs != nil {
				totalMs += *sess.Metrics.TotalExecutionTimeMs
			}
			if sess.Metrics.Errors == 0 {
				clean++
			}
		case types.SessionStatusRunning:
			in.Running++
		}
	}

	if in.Completed > 0 {
		in.AverageExecutionMs = totalMs / int64(in.Completed)
		in.SuccessRate = float64(clean) * 100 / float64(in.Completed)
	}

	in.FailurePatterns = make([]FailurePattern, 0, len(byAction))
	for action, n := range byAction {
		in.FailurePatterns = append(in.FailurePatterns, FailurePattern{Action: action, Count: n})
	}
	sort.Slice(in.FailurePatterns, func(i, j int) bool {
		a, b := in.FailurePatterns[i], in.FailurePatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Action < b.Action
	})

	in.Recommendations = recommend(in)
	return in, nil
}

func recommend(in Insights) []string {
	var recs []string
	if len(in.FailurePatterns) > 0 {
		recs = append(recs, fmt.Sprintf("Investigate the most frequent failing step: %s", in.FailurePatterns[0].Action))
	}
	if in.TotalWarnings > 0 {
		recs = append(recs, "Review warnings before they turn into flaky failures")
	}
	if in.AverageExecutionMs > int64(time.Minute/time.Millisecond) {
		recs = append(recs, "Consider parallel execution for faster feedback")
	}
	if in.Running > 0 {
		recs = append(recs, fmt.Sprintf("%d session(s) still running; stop them to record total execution time", in.Running))
	}
	if in.Sessions == 0 {
		recs = append(recs, "No monitored runs in this window; start monitoring to collect data")
	} else if len(recs) == 0 {
		recs = append(recs, "No issues detected")
	}
	return recs
}

// Markdown renders the insights as the get_insights tool reports them
func (in Insights) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Real-time Insights for %s\n\n", in.TestSuite)

	b.WriteString("**Execution Trend**\n")
	fmt.Fprintf(&b, "- %d run(s) in the last %s (%d completed, %d running)\n\n", in.Sessions, in.TimeRange, in.Completed, in.Running)

	b.WriteString("**Performance Metrics**\n")
	fmt.Fprintf(&b, "- Average execution time: %s\n", FormatDuration(in.AverageExecutionMs))
	fmt.Fprintf(&b, "- Success rate: %.0f%%\n", in.SuccessRate)
	fmt.Fprintf(&b, "- Tests with errors: %d\n", in.TestsWithErrors)
	fmt.Fprintf(&b, "- Steps: %d (%d errors, %d warnings)\n\n", in.TotalSteps, in.TotalErrors, in.TotalWarnings)

	b.WriteString("**Failure Patterns**\n")
	if len(in.FailurePatterns) == 0 {
		b.WriteString("- No failures recorded\n")
	}
	for _, p := range in.FailurePatterns {
		fmt.Fprintf(&b, "- %s: %d occurrences\n", p.Action, p.Count)
	}

	b.WriteString("\n**Recommendations**\n")
	for _, r := range in.Recommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String()
}

// FormatDuration renders milliseconds as "2m 30s", "4s" or "350ms"
func FormatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", ms)
	}
}
