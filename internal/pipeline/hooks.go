package pipeline

import (
	"context"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// StageName names one of the four pipeline slots.
type StageName string

const (
	StageAuthenticate StageName = "authenticate"
	StageAuthorize    StageName = "authorize"
	StageAction       StageName = "action"
	StageRender       StageName = "render"
)

// PipelineStages lists the slots in their fixed execution order.
var PipelineStages = []StageName{StageAuthenticate, StageAuthorize, StageAction, StageRender}

// Valid reports whether n is one of the four pipeline slots.
func (n StageName) Valid() bool {
	for _, s := range PipelineStages {
		if s == n {
			return true
		}
	}
	return false
}

// Hook is a wrapper context transform. Hooks compose like stages.
type Hook func(ctx context.Context, sc *domain.Context) domain.Result

// Wrapper is the before/after hook pair a parent attaches to one slot of its
// mounted children.
type Wrapper struct {
	Before []Hook
	After  []Hook
}

// RunHooks runs hooks in order under the given slot name. Each hook gets the
// stage fault boundary, so a panicking hook fails like a stage would.
func RunHooks(ctx context.Context, slot StageName, hooks []Hook, sc *domain.Context) domain.Result {
	current := domain.Success(sc)
	for _, h := range hooks {
		if h == nil {
			continue
		}
		current = NamedStage(string(slot), PerformerFunc(h)).Call(ctx, current.Value())
		if current.IsFailure() {
			return current
		}
	}
	return current
}
