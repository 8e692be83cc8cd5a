package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/sitepipe/pkg/core"
)

func TestFromHistory_Completed(t *testing.T) {
	job := &core.Job{ID: "j1", Status: core.StatusCompleted}
	var history []core.ProgressStep
	for _, s := range core.Stages {
		history = append(history,
			core.ProgressStep{Stage: s, Status: core.StepRunning},
			core.ProgressStep{Stage: s, Status: core.StepCompleted, Degraded: s == core.StageDeploy},
		)
	}

	snap := FromHistory(job, history)

	assert.Equal(t, SessionCompleted, snap.Status)
	assert.True(t, snap.Terminal)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, len(core.Stages), snap.CompletedSteps)
	assert.True(t, snap.Agents[core.StageDeploy].Degraded)
	assert.EqualValues(t, len(history), snap.Sequence)
}

func TestFromHistory_FailedCarriesError(t *testing.T) {
	job := &core.Job{ID: "j2", Status: core.StatusFailed, Error: "domain-analysis: no such host"}
	history := []core.ProgressStep{
		{Stage: core.StageDomainAnalysis, Status: core.StepRunning},
		{Stage: core.StageDomainAnalysis, Status: core.StepFailed, Message: "no such host"},
	}

	snap := FromHistory(job, history)

	assert.Equal(t, SessionFailed, snap.Status)
	assert.True(t, snap.Terminal)
	assert.Equal(t, job.Error, snap.Error)
	assert.Zero(t, snap.CompletedSteps)
	assert.Equal(t, core.StepFailed, snap.Agents[core.StageDomainAnalysis].Status)
	assert.Equal(t, core.StepPending, snap.Agents[core.StageStrategy].Status)
}

func TestFromHistory_QueuedIsOpen(t *testing.T) {
	snap := FromHistory(&core.Job{ID: "j3", Status: core.StatusQueued}, nil)

	assert.Equal(t, SessionOpen, snap.Status)
	assert.False(t, snap.Terminal)
	assert.Zero(t, snap.Percent)
	assert.Len(t, snap.Agents, len(core.Stages))
}
