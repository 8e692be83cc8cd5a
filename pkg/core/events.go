package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// JobEnqueued is emitted after a submission is durably recorded.
type JobEnqueued struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobEnqueued) eventMarker() {}

// JobStarted is emitted when a claimed job starts its pipeline.
type JobStarted struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes, degraded stages included.
type JobCompleted struct {
	Job       *Job
	Degraded  []Stage
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails permanently.
type JobFailed struct {
	Job       *Job
	Stage     Stage
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// StageFinished is emitted once per stage attempt.
type StageFinished struct {
	JobID     string
	Stage     Stage
	Outcome   StageOutcome
	Duration  time.Duration
	Timestamp time.Time
}

func (*StageFinished) eventMarker() {}

// StageOutcome classifies how a stage ended.
type StageOutcome string

const (
	OutcomeSucceeded StageOutcome = "succeeded"
	OutcomeDegraded  StageOutcome = "degraded"
	OutcomeFailed    StageOutcome = "failed"
)

// TickCompleted is emitted at the end of every scheduler pass.
type TickCompleted struct {
	Processed int
	Succeeded int
	Failed    int
	Recovered int64
	Duration  time.Duration
	Timestamp time.Time
}

func (*TickCompleted) eventMarker() {}

// Emitter publishes events to interested listeners.
type Emitter interface {
	Emit(Event)
}
