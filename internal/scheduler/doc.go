// Package scheduler dispatches job plans onto a bounded worker pool.
//
// Dispatch is FIFO in submission order and at most the configured number of
// jobs run at once; additional jobs wait for a free worker. Each Submit
// returns a Batch handle that scopes cancellation, streams progress updates,
// and exposes per-job state snapshots. Batches sharing the pool are
// independent: cancelling one never disturbs another.
package scheduler
