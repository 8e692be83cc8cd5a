// Package pipeline runs the fixed stage sequence for one job.
//
// The six stages always run in core.Stages order. Each stage is a variant of
// the Stage interface: Run calls an external collaborator under one bounded
// timeout, and Fallback derives a lower-fidelity output of the same shape
// without touching the network. Only domain-analysis is required; any other
// stage that fails is replaced by its fallback and the job continues.
//
// Stage outputs are JSON documents. Every stage receives deep copies of the
// outputs that came before it, and its own output is merged only after it
// succeeded or was substituted, so a failing collaborator can never leave a
// partial write behind.
package pipeline
