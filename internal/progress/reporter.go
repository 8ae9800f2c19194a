package progress

import (
	"fmt"
	"strings"
	"time"
)

// ProgressInfo is a snapshot of a run in flight.
type ProgressInfo struct {
	TotalTasks        int
	CompletedTasks    int
	FailedTasks       int
	SkippedTasks      int
	RunningTasks      []string
	ElapsedTime       time.Duration
	EstimatedTimeLeft time.Duration
}

// Done is the number of tasks that reached a terminal state.
func (p ProgressInfo) Done() int {
	return p.CompletedTasks + p.FailedTasks + p.SkippedTasks
}

// Reporter handles periodic progress reporting
type Reporter struct {
	startTime      time.Time
	lastReportTime time.Time
	reportInterval time.Duration
}

// NewReporter creates a reporter that reports at most once per interval.
// A zero interval means every call to ShouldReport returns true.
func NewReporter(interval time.Duration) *Reporter {
	now := time.Now()
	return &Reporter{
		startTime:      now,
		lastReportTime: now,
		reportInterval: interval,
	}
}

// ShouldReport returns true if it's time to report progress
func (r *Reporter) ShouldReport() bool {
	return time.Since(r.lastReportTime) >= r.reportInterval
}

// Report generates a formatted progress report
func (r *Reporter) Report(info ProgressInfo) string {
	r.lastReportTime = time.Now()

	var sb strings.Builder

	percentage := 0.0
	if info.TotalTasks > 0 {
		percentage = float64(info.Done()) / float64(info.TotalTasks) * 100
	}

	sb.WriteString(fmt.Sprintf("Progress: %d/%d tasks done (%.1f%%)",
		info.Done(), info.TotalTasks, percentage))
	if info.FailedTasks > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", info.FailedTasks))
	}
	if info.SkippedTasks > 0 {
		sb.WriteString(fmt.Sprintf(", %d skipped", info.SkippedTasks))
	}

	sb.WriteString(fmt.Sprintf(" | Elapsed: %s", FormatDuration(info.ElapsedTime)))
	if info.EstimatedTimeLeft > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %s", FormatDuration(info.EstimatedTimeLeft)))
	}

	if len(info.RunningTasks) > 0 {
		sb.WriteString(fmt.Sprintf("\n   Running: %s", strings.Join(info.RunningTasks, ", ")))
	}

	return sb.String()
}

// CalculateETA estimates time remaining based on current progress
func CalculateETA(completed, total int, elapsed time.Duration) time.Duration {
	if completed <= 0 || total <= 0 || completed >= total {
		return 0
	}

	averageTimePerTask := elapsed / time.Duration(completed)
	remainingTasks := total - completed
	return averageTimePerTask * time.Duration(remainingTasks)
}

// FormatDuration formats a duration in a user-friendly way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
