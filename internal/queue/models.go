package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// FailureKind refines StatusFailed for reports.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureProcess         FailureKind = "process"
	FailureOutputMissing   FailureKind = "output_missing"
	FailureTimeout         FailureKind = "timeout"
	FailureToolUnavailable FailureKind = "tool_unavailable"
)

// BatchStatus is the aggregate outcome of a batch.
type BatchStatus string

const (
	BatchRunning         BatchStatus = "running"
	BatchCompleted       BatchStatus = "completed"
	BatchPartiallyFailed BatchStatus = "partially_failed"
)

// Job is one conversion persisted in SQLite.
type Job struct {
	ID              string
	BatchID         string
	SourcePath      string
	OutputPath      string
	Mode            string
	Status          Status
	FailureKind     FailureKind
	ErrorMessage    string
	ProgressPercent float64
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Batch groups the jobs submitted together.
type Batch struct {
	ID         string
	Status     BatchStatus
	JobCount   int
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// Summary describes aggregated job counts per lifecycle state.
type Summary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}
