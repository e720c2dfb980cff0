// Package report aggregates per-job outcomes into a batch report.
package report

import (
	"sync"

	"clipforge/internal/queue"
	"clipforge/internal/scheduler"
)

// BatchReport enumerates every job's terminal state for one batch.
type BatchReport struct {
	BatchID string
	Status  queue.BatchStatus
	Jobs    []scheduler.JobState

	Completed int
	Failed    int
	Cancelled int
	// FailedJobs and CancelledJobs list the identities of jobs that did
	// not complete.
	FailedJobs    []string
	CancelledJobs []string
}

// Collector accumulates job states keyed by job identity, so completions
// arriving in any order aggregate correctly.
type Collector struct {
	batchID string

	mu      sync.Mutex
	results map[string]scheduler.JobState
	order   []string
}

// NewCollector constructs a collector for one batch.
func NewCollector(batchID string) *Collector {
	return &Collector{
		batchID: batchID,
		results: make(map[string]scheduler.JobState),
	}
}

// Record stores a job's latest state. Later records for the same job replace
// earlier ones; insertion order is kept for the report.
func (c *Collector) Record(state scheduler.JobState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.results[state.ID]; !seen {
		c.order = append(c.order, state.ID)
	}
	c.results[state.ID] = state
}

// Report builds the aggregate view. The batch counts as Completed only when
// every recorded job completed; any failure or cancellation makes it
// PartiallyFailed. No recorded job is ever dropped.
func (c *Collector) Report() BatchReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := BatchReport{BatchID: c.batchID, Status: queue.BatchCompleted}
	for _, id := range c.order {
		state := c.results[id]
		rep.Jobs = append(rep.Jobs, state)
		switch state.Status {
		case queue.StatusCompleted:
			rep.Completed++
		case queue.StatusCancelled:
			rep.Cancelled++
			rep.CancelledJobs = append(rep.CancelledJobs, id)
			rep.Status = queue.BatchPartiallyFailed
		default:
			rep.Failed++
			rep.FailedJobs = append(rep.FailedJobs, id)
			rep.Status = queue.BatchPartiallyFailed
		}
	}
	return rep
}

// FromBatch collects a drained batch handle into a report.
func FromBatch(batch *scheduler.Batch) BatchReport {
	collector := NewCollector(batch.ID)
	for _, state := range batch.Snapshot() {
		collector.Record(state)
	}
	return collector.Report()
}
