package progress

import (
	"time"

	"github.com/jdziat/sitepipe/pkg/core"
)

// SessionStatus is the coarse state of a progress session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// IsTerminal reports whether the session will receive no further updates.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// AgentStatus is the last known state of one stage.
type AgentStatus struct {
	Status   core.StepStatus `json:"status"`
	Message  string          `json:"message,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
}

// Snapshot is the cumulative state of a session at one point in time.
type Snapshot struct {
	SessionID      string                     `json:"sessionId"`
	Status         SessionStatus              `json:"status"`
	Agents         map[core.Stage]AgentStatus `json:"agents"`
	CompletedSteps int                        `json:"completedSteps"`
	TotalSteps     int                        `json:"totalSteps"`
	Percent        int                        `json:"percent"`
	Error          string                     `json:"error,omitempty"`
	Terminal       bool                       `json:"terminal"`
	Sequence       uint64                     `json:"sequence"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

func (s Snapshot) clone() Snapshot {
	agents := make(map[core.Stage]AgentStatus, len(s.Agents))
	for k, v := range s.Agents {
		agents[k] = v
	}
	s.Agents = agents
	return s
}

// Delta is one mutation published by the pipeline. Empty fields leave the
// session untouched.
type Delta struct {
	Status      SessionStatus   `json:"status,omitempty"`
	Stage       core.Stage      `json:"stage,omitempty"`
	StageStatus core.StepStatus `json:"stageStatus,omitempty"`
	Message     string          `json:"message,omitempty"`
	Degraded    bool            `json:"degraded,omitempty"`
	Error       string          `json:"error,omitempty"`
}
