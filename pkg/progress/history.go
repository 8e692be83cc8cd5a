package progress

import (
	"github.com/jdziat/sitepipe/pkg/core"
)

// FromHistory rebuilds a snapshot for a job from its stored progress
// history. It serves late joiners once the live session is gone.
func FromHistory(job *core.Job, history []core.ProgressStep) Snapshot {
	snap := Snapshot{
		SessionID:  job.ID,
		Status:     SessionOpen,
		Agents:     make(map[core.Stage]AgentStatus, len(core.Stages)),
		TotalSteps: len(core.Stages),
		UpdatedAt:  job.UpdatedAt,
	}
	for _, stage := range core.Stages {
		snap.Agents[stage] = AgentStatus{Status: core.StepPending}
	}
	for _, step := range history {
		snap.Agents[step.Stage] = AgentStatus{
			Status:   step.Status,
			Message:  step.Message,
			Degraded: step.Degraded,
		}
		snap.Sequence++
	}

	switch job.Status {
	case core.StatusProcessing:
		snap.Status = SessionRunning
	case core.StatusCompleted:
		snap.Status = SessionCompleted
	case core.StatusFailed:
		snap.Status = SessionFailed
		snap.Error = job.Error
	}

	snap.CompletedSteps = core.CompletedPrefix(history)
	snap.Percent = core.OverallPercent(snap.CompletedSteps)
	if snap.Status == SessionCompleted {
		snap.Percent = 100
	}
	snap.Terminal = snap.Status.IsTerminal()
	return snap
}
