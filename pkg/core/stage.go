package core

// Stage names one step of the fixed pipeline.
type Stage string

const (
	StageDomainAnalysis Stage = "domain-analysis"
	StageStrategy       Stage = "strategy"
	StageDesign         Stage = "design"
	StageContent        Stage = "content"
	StageBuild          Stage = "build"
	StageDeploy         Stage = "deploy"
)

// Stages is the pipeline order. It never changes at runtime.
var Stages = []Stage{
	StageDomainAnalysis,
	StageStrategy,
	StageDesign,
	StageContent,
	StageBuild,
	StageDeploy,
}

// Index returns the position of s in Stages, or -1 if s is unknown.
func (s Stage) Index() int {
	for i, known := range Stages {
		if s == known {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the pipeline stages.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// StepStatus is the status of a single stage within a job.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)
