// Package queue persists render jobs in SQLite and enforces the job status
// state machine. At most one job is active at a time; the pipeline scheduler
// relies on the store's transition validation to keep that invariant
// observable after a crash.
package queue
