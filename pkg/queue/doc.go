// Package queue provides the submission gateway: it validates and records
// new jobs, serves job views, and carries the lifecycle hooks and event
// stream other components subscribe to.
package queue
