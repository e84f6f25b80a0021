package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/route"
)

// testFactories registers a minimal stage, hook and branch set.
func testFactories() *Factories {
	f := NewFactories()
	f.RegisterStage(pipeline.StageAuthenticate, "open", func(Params) (route.StageFactory, error) {
		return func() *pipeline.Stage { return pipeline.NamedStage("authenticate", pipeline.NoOp{}) }, nil
	})
	f.RegisterStage(pipeline.StageAction, "hello", func(p Params) (route.StageFactory, error) {
		greeting := p.String("greeting", "hello")
		return func() *pipeline.Stage {
			return pipeline.NamedStage("action", &pipeline.Action{Logic: func(_ context.Context, req domain.Request, _ *domain.Identity, _ *domain.Permissions) (any, error) {
				return map[string]string{"greeting": greeting, "path": req.Path()}, nil
			}})
		}, nil
	})
	f.RegisterHook("mark", func(p Params) (pipeline.Hook, error) {
		header := p.String("header", "X-Mark")
		return func(_ context.Context, sc *domain.Context) domain.Result {
			sc.Response.Header().Set(header, "1")
			return domain.Success(sc)
		}, nil
	})
	f.RegisterBranch("step", func(Params) (pipeline.NextStageFunc, error) {
		return func(_ domain.Result, current int) int { return current + 1 }, nil
	})
	return f
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func handler(t *testing.T, def route.Definition) *route.Handler {
	t.Helper()
	h, err := route.NewHandler(def, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}
