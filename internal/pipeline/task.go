package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

// DefaultLoopFactor bounds RunConditional at this many invocations per stage.
const DefaultLoopFactor = 16

// NextStageFunc picks the index of the stage to run after a success at
// current. Returning an index at or past the stage count ends the run.
type NextStageFunc func(res domain.Result, current int) int

// Task runs an ordered list of stages over one context, stopping at the
// first failure. Stages are append-only.
type Task struct {
	stages []*Stage

	// Next overrides the branching decision of RunConditional.
	Next NextStageFunc
	// MaxInvocations caps stage calls in RunConditional. Zero means
	// DefaultLoopFactor times the stage count.
	MaxInvocations int

	observers []ports.StageObserver
}

// NewTask creates a task from stages in execution order.
func NewTask(stages ...*Stage) (*Task, error) {
	t := &Task{}
	for _, s := range stages {
		if err := t.AddStage(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddStage appends a stage. A nil stage is rejected with an
// invalid_stage_argument configuration error.
func (t *Task) AddStage(s *Stage) error {
	if s == nil {
		return domain.ErrInvalidStageArgument()
	}
	t.stages = append(t.stages, s)
	return nil
}

// Observe registers an observer notified after each stage call.
func (t *Task) Observe(o ports.StageObserver) {
	if o != nil {
		t.observers = append(t.observers, o)
	}
}

// Stages returns the stages in execution order.
func (t *Task) Stages() []*Stage {
	out := make([]*Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// Len returns the number of stages.
func (t *Task) Len() int { return len(t.stages) }

// Run executes every stage in insertion order. Each successful stage's
// context feeds the next one; the first failure is returned unchanged and
// the remaining stages are not run.
func (t *Task) Run(ctx context.Context, sc *domain.Context) domain.Result {
	current := domain.Success(sc)
	for _, stage := range t.stages {
		current = t.call(ctx, stage, current.Value())
		if current.IsFailure() {
			return current
		}
	}
	return current
}

// RunConditional executes stages starting at index 0, asking
// DetermineNextStage after every success which index runs next. Backward
// jumps re-run a stage after resetting it. The run ends on the first
// failure, once the next index reaches the stage count, or with a
// stage_loop_limit failure when MaxInvocations is exceeded.
func (t *Task) RunConditional(ctx context.Context, sc *domain.Context) domain.Result {
	current := domain.Success(sc)
	limit := t.MaxInvocations
	if limit <= 0 {
		limit = DefaultLoopFactor * len(t.stages)
	}

	invocations := 0
	for idx := 0; idx < len(t.stages); {
		if idx < 0 {
			return domain.Failure(domain.NewStageError(domain.KindConfiguration, domain.CodeInvalidStageIndex,
				fmt.Sprintf("next stage index %d is negative", idx)).WithStage("task"))
		}
		if invocations >= limit {
			return domain.Failure(domain.NewStageError(domain.KindConfiguration, domain.CodeStageLoopLimit,
				fmt.Sprintf("stage invocation limit %d exceeded", limit)).WithStage("task"))
		}
		invocations++

		stage := t.stages[idx]
		if stage.Performed() {
			stage.Reset()
		}
		current = t.call(ctx, stage, current.Value())
		if current.IsFailure() {
			return current
		}
		idx = t.DetermineNextStage(current, idx)
	}
	return current
}

// DetermineNextStage returns the index that follows current. It uses Next
// when set and current+1 otherwise.
func (t *Task) DetermineNextStage(res domain.Result, current int) int {
	if t.Next != nil {
		return t.Next(res, current)
	}
	return current + 1
}

func (t *Task) call(ctx context.Context, stage *Stage, sc *domain.Context) domain.Result {
	start := time.Now()
	res := stage.Call(ctx, sc)
	for _, o := range t.observers {
		o.ObserveStage(stage.Name(), res, time.Since(start))
	}
	return res
}

// AllSuccessful reports whether every stage has run and succeeded.
func (t *Task) AllSuccessful() bool {
	for _, s := range t.stages {
		if !s.Succeeded() {
			return false
		}
	}
	return true
}

// AnyFailed reports whether any stage has run and failed.
func (t *Task) AnyFailed() bool {
	for _, s := range t.stages {
		if s.Failed() {
			return true
		}
	}
	return false
}

// Reset returns every stage to not executed. The stage list is unchanged.
func (t *Task) Reset() {
	for _, s := range t.stages {
		s.Reset()
	}
}
