// Package collab holds the concrete services the pipeline stages call: a
// site inspector for domain analysis, a Claude-backed generator for the
// strategy, design and content stages, and an object-storage publisher for
// deploys.
package collab
