package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jdziat/sitepipe/pkg/core"
)

var (
	// ErrStageTimeout is returned when a collaborator exceeds the stage timeout.
	ErrStageTimeout = errors.New("pipeline: stage timed out")

	// ErrNoFallback is returned by stages that cannot degrade.
	ErrNoFallback = errors.New("pipeline: stage has no fallback")

	// ErrMissingOutput is returned when a prior stage output is absent.
	ErrMissingOutput = errors.New("pipeline: missing stage output")

	// ErrNoCollaborator is returned when a stage has nothing to call.
	ErrNoCollaborator = errors.New("pipeline: collaborator not configured")
)

// StageError reports which stage stopped a job.
type StageError struct {
	Stage core.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Input is the accumulated context handed to a stage.
type Input struct {
	JobID      string
	Key        string
	Payload    core.Payload
	RawPayload json.RawMessage
	Outputs    map[core.Stage]json.RawMessage
}

// clone returns a deep copy so a stage cannot mutate state it does not own.
func (in Input) clone() Input {
	out := in
	out.RawPayload = append(json.RawMessage(nil), in.RawPayload...)
	out.Outputs = make(map[core.Stage]json.RawMessage, len(in.Outputs))
	for k, v := range in.Outputs {
		out.Outputs[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Decode unmarshals the output a prior stage produced.
func Decode[T any](in Input, stage core.Stage) (T, error) {
	var v T
	raw, ok := in.Outputs[stage]
	if !ok {
		return v, fmt.Errorf("%w: %s", ErrMissingOutput, stage)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s output: %w", stage, err)
	}
	return v, nil
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() core.Stage
	Required() bool
	Run(ctx context.Context, in Input) (json.RawMessage, error)
	Fallback(in Input, cause error) (json.RawMessage, error)
}

// RunFunc produces a stage output by calling a collaborator.
type RunFunc func(ctx context.Context, in Input) (any, error)

// FallbackFunc produces a deterministic output without network access.
type FallbackFunc func(in Input, cause error) (any, error)

type variant struct {
	name     core.Stage
	required bool
	run      RunFunc
	fallback FallbackFunc
}

// NewStage builds a Stage from a run function and an optional fallback.
// A nil fallback makes Fallback return ErrNoFallback.
func NewStage(name core.Stage, required bool, run RunFunc, fallback FallbackFunc) Stage {
	return &variant{name: name, required: required, run: run, fallback: fallback}
}

func (v *variant) Name() core.Stage { return v.name }

func (v *variant) Required() bool { return v.required }

func (v *variant) Run(ctx context.Context, in Input) (json.RawMessage, error) {
	out, err := v.run(ctx, in)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (v *variant) Fallback(in Input, cause error) (json.RawMessage, error) {
	if v.fallback == nil {
		return nil, ErrNoFallback
	}
	out, err := v.fallback(in, cause)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}
