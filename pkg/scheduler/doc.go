// Package scheduler provides the lease scheduler that drives queued jobs
// through the pipeline.
//
// This package includes:
//   - Scheduler: claims a bounded batch per tick and runs it sequentially
//   - Option: batch size, pacing, lease and trigger configuration
//   - Lease heartbeats while a job runs, and recovery of expired leases
//
// Scheduler instances hold no per-job state between ticks, so any number
// of them may tick concurrently; the store's atomic claim keeps a job from
// being processed twice.
package scheduler
