package registration

import (
	"fmt"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/plugin"
)

// skipFlagged skips the following stages when a stage leaves a true flag
// in the context extensions. The flag is consumed by the jump.
func skipFlagged(p plugin.Params) (pipeline.NextStageFunc, error) {
	key := p.String("key", "skip")
	count := p.Int("count", 1)
	if count < 1 {
		return nil, fmt.Errorf("skip_flagged: count must be at least 1, got %d", count)
	}
	return func(res domain.Result, current int) int {
		sc := res.Value()
		if sc == nil {
			return current + 1
		}
		if v, ok := sc.Get(key); ok && flagSet(v) {
			sc.Delete(key)
			return current + 1 + count
		}
		return current + 1
	}, nil
}

func flagSet(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
