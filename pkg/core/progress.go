package core

import "time"

// ProgressStep is one append-only entry of a job's progress history.
type ProgressStep struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID          string     `gorm:"index;size:36;not null" json:"jobId"`
	Stage          Stage      `gorm:"size:64;not null" json:"stage"`
	Status         StepStatus `gorm:"size:20;not null" json:"status"`
	Percent        int        `gorm:"default:0" json:"percent"`
	OverallPercent int        `gorm:"default:0" json:"overallPercent"`
	Degraded       bool       `gorm:"default:false" json:"degraded"`
	Message        string     `gorm:"type:text" json:"message,omitempty"`
	RecordedAt     time.Time  `gorm:"index" json:"recordedAt"`
}

// CompletedPrefix returns how many stages, in pipeline order, have a
// completed step in history. It stops at the first stage without one.
func CompletedPrefix(history []ProgressStep) int {
	done := make(map[Stage]bool, len(Stages))
	for _, step := range history {
		if step.Status == StepCompleted {
			done[step.Stage] = true
		}
	}
	n := 0
	for _, stage := range Stages {
		if !done[stage] {
			break
		}
		n++
	}
	return n
}

// OverallPercent converts a completed stage count into a job-wide percentage.
func OverallPercent(completed int) int {
	if completed <= 0 {
		return 0
	}
	if completed >= len(Stages) {
		return 100
	}
	return completed * 100 / len(Stages)
}
