// Package queue persists batch and job history in SQLite.
//
// The store records every submitted batch, tracks per-job status and
// progress while the scheduler runs, and serves the history and status
// commands afterwards. A file lock next to the database keeps a second
// clipforge process from writing concurrently.
package queue
