// Package progress provides live, in-memory progress sessions for running jobs.
//
// A Broadcaster owns every session of the process. The pipeline publishes a
// Delta on each stage transition; the session merges it and writes the full
// cumulative Snapshot to every subscriber before Publish returns. New
// subscribers receive the current Snapshot immediately, so joining late never
// means missing earlier stages.
//
// Sessions are not persisted. They expire after a fixed idle TTL, and terminal
// sessions are dropped once their subscribers have drained. A Relay can share
// deltas between processes that serve the same jobs.
package progress
