// Package core provides the domain models and interfaces for sitepipe.
package core

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// JobStatuses lists every valid job status.
var JobStatuses = []JobStatus{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	for _, known := range JobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
//
// processing -> queued is only taken by lease recovery after the owning
// worker stopped heartbeating without a terminal write.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusQueued
	default:
		return false
	}
}

// Job represents one unit of pipeline work tied to a caller-supplied key.
type Job struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	Key            string         `gorm:"column:job_key;index;size:255;not null" json:"key"`
	Status         JobStatus      `gorm:"index;size:20;default:'queued'" json:"status"`
	Payload        datatypes.JSON `json:"payload,omitempty"`
	Result         datatypes.JSON `json:"result,omitempty"`
	Error          string         `gorm:"type:text" json:"error,omitempty"`
	Attempt        int            `gorm:"default:0" json:"attempt"`
	LockedBy       string         `gorm:"size:255" json:"-"`
	LeaseExpiresAt *time.Time     `gorm:"index" json:"-"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// DecodePayload extracts the well-known payload fields. An empty payload
// decodes to the zero Payload.
func (j *Job) DecodePayload() (Payload, error) {
	var p Payload
	if len(j.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, err
	}
	return p, nil
}

// Payload holds the fields of a job payload that the pipeline understands.
// The raw payload is always kept alongside it, so unknown keys survive.
type Payload struct {
	Regenerate  bool                       `json:"regenerate,omitempty"`
	Feedback    string                     `json:"feedback,omitempty"`
	Hints       map[string]json.RawMessage `json:"hints,omitempty"`
	RequestedBy string                     `json:"requestedBy,omitempty"`
	Track       bool                       `json:"track,omitempty"`
}

// Hint returns the raw hint stored under name, if any.
func (p Payload) Hint(name string) (json.RawMessage, bool) {
	raw, ok := p.Hints[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// JobFilter narrows ListRecent results.
type JobFilter struct {
	Statuses []JobStatus
	Key      string
}
