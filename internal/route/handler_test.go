package route

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/pipeline"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func testRuntime() *Runtime {
	return &Runtime{Now: func() time.Time { return fixedNow }}
}

// echoPath is an action that returns the path it was called with.
func echoPath() *pipeline.Stage {
	return pipeline.NamedStage("action", &pipeline.Action{Logic: func(_ context.Context, req domain.Request, id *domain.Identity, _ *domain.Permissions) (any, error) {
		return map[string]string{"path": req.Path(), "user_id": id.UserID}, nil
	}})
}

func authedRequest(method, path string) domain.Request {
	h := make(http.Header)
	h.Set("Authorization", "Bearer token-1")
	return domain.NewRequest(method, path, h)
}

func decodeBody(t *testing.T, out domain.Triple) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(out.Body, &body); err != nil {
		t.Fatalf("body is not json: %v (%s)", err, out.Body)
	}
	return body
}

type stubEnv struct {
	disabled map[string]bool
}

func (e *stubEnv) String(string, string) (string, bool) { return "", false }
func (e *stubEnv) Int(string, string) (int, bool)       { return 0, false }
func (e *stubEnv) Bool(string, string) (bool, bool)     { return false, false }
func (e *stubEnv) Exists(string, string) bool           { return false }
func (e *stubEnv) Enabled(namespace string) bool        { return !e.disabled[namespace] }

var _ ports.Env = (*stubEnv)(nil)

func TestNewHandler_Defaults(t *testing.T) {
	h, err := NewHandler(Definition{Pattern: "/api/users/{id}"}, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if h.Name() != "api_users_id" {
		t.Errorf("derived name = %q", h.Name())
	}
	if got := h.Methods(); len(got) != 5 {
		t.Errorf("default methods = %v", got)
	}
	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		if !h.AllowsMethod(m) {
			t.Errorf("method %s should be allowed by default", m)
		}
	}
	if h.AllowsMethod(http.MethodHead) {
		t.Error("HEAD is not in the default set")
	}
}

func TestNewHandler_Rejects(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"relative pattern", Definition{Pattern: "users"}},
		{"unknown wrapper slot", Definition{Pattern: "/x", Wrappers: map[pipeline.StageName]pipeline.Wrapper{"bogus": {}}}},
		{"empty delegation target", Definition{Pattern: "/x", Delegate: &Delegation{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHandler(tt.def, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandler_Matches(t *testing.T) {
	env := &stubEnv{disabled: map[string]bool{}}
	h := MustHandler(Definition{Name: "orders", Pattern: "/orders/{id}", Methods: []string{"get"}}, &Runtime{Env: env})

	if !h.Matches(domain.NewRequest("GET", "/orders/9", nil)) {
		t.Error("expected match")
	}
	if h.Matches(domain.NewRequest("POST", "/orders/9", nil)) {
		t.Error("POST is not allowed")
	}
	if h.Matches(domain.NewRequest("GET", "/orders", nil)) {
		t.Error("path without id should not match")
	}

	env.disabled["plugins.orders"] = true
	if h.Matches(domain.NewRequest("GET", "/orders/9", nil)) {
		t.Error("disabled handler must not match")
	}
}

func TestHandler_Matches_ExtensionMethods(t *testing.T) {
	h := MustHandler(Definition{Name: "cache", Pattern: "/cache/{key}", Methods: []string{"PURGE", "propfind"}}, nil)

	for _, m := range []string{"PURGE", "PROPFIND", "purge"} {
		if !h.Matches(domain.NewRequest(m, "/cache/a", nil)) {
			t.Errorf("%s /cache/a should match", m)
		}
	}
	if h.Matches(domain.NewRequest("GET", "/cache/a", nil)) {
		t.Error("GET is not in the allowed set")
	}
	if h.Matches(domain.NewRequest("PURGE", "/other", nil)) {
		t.Error("PURGE /other should not match")
	}
}

func TestHandler_EmptyPatternNeverMatches(t *testing.T) {
	h := MustHandler(Definition{Name: "nothing"}, nil)
	if h.Matches(domain.NewRequest("GET", "/", nil)) {
		t.Error("empty pattern matched")
	}
}

func TestHandler_Call_Success(t *testing.T) {
	h := MustHandler(Definition{Pattern: "/orders", Action: echoPath}, testRuntime())

	out, err := h.Call(context.Background(), authedRequest("GET", "/orders"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", out.Status, out.Body)
	}
	if body := decodeBody(t, out); body["path"] != "/orders" || body["user_id"] == "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_Call_MissingCredentials(t *testing.T) {
	h := MustHandler(Definition{Pattern: "/orders", Action: echoPath}, testRuntime())

	out, err := h.Call(context.Background(), domain.NewRequest("GET", "/orders", nil))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", out.Status)
	}
	if ct := out.Headers.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	want := map[string]string{
		"error":     "Missing authentication credentials",
		"stage":     "authenticate",
		"code":      "missing_credentials",
		"timestamp": "2026-03-04T05:06:07Z",
	}
	body := decodeBody(t, out)
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%s] = %q, want %q", k, body[k], v)
		}
	}
}

func TestHandler_Call_AccessDenied(t *testing.T) {
	h := MustHandler(Definition{
		Pattern: "/orders",
		Action:  echoPath,
		Authorize: func() *pipeline.Stage {
			return pipeline.NamedStage("authorize", &pipeline.Authorize{Decider: pipeline.DenyAll})
		},
	}, testRuntime())

	out, _ := h.Call(context.Background(), authedRequest("GET", "/orders"))
	if out.Status != http.StatusForbidden {
		t.Errorf("status = %d", out.Status)
	}
	if body := decodeBody(t, out); body["code"] != domain.CodeAccessDenied {
		t.Errorf("code = %q", body["code"])
	}
}

func TestHandler_Call_NoAction(t *testing.T) {
	h := MustHandler(Definition{Pattern: "/orders"}, testRuntime())

	out, err := h.Call(context.Background(), authedRequest("GET", "/orders"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", out.Status)
	}
	body := decodeBody(t, out)
	if body["code"] != domain.CodeNotImplementedActionStage || body["stage"] != "action" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_Call_StatusHint(t *testing.T) {
	h := MustHandler(Definition{
		Pattern: "/orders",
		Action: func() *pipeline.Stage {
			return pipeline.NamedStage("action", &pipeline.Action{Logic: func(context.Context, domain.Request, *domain.Identity, *domain.Permissions) (any, error) {
				return nil, domain.NewStageError(domain.KindAction, "conflict", "Already exists").WithStatus(http.StatusConflict)
			}})
		},
	}, testRuntime())

	out, _ := h.Call(context.Background(), authedRequest("POST", "/orders"))
	if out.Status != http.StatusConflict {
		t.Errorf("status = %d", out.Status)
	}
}

func TestHandler_Call_PathParams(t *testing.T) {
	var seen map[string]string
	h := MustHandler(Definition{
		Pattern: "/orders/{id}",
		Authenticate: func() *pipeline.Stage {
			return pipeline.NamedStage("authenticate", pipeline.PerformerFunc(func(_ context.Context, sc *domain.Context) domain.Result {
				seen = sc.PathParams()
				return pipeline.NoOp{}.Perform(context.Background(), sc)
			}))
		},
		Action: echoPath,
	}, testRuntime())

	if _, err := h.Call(context.Background(), domain.NewRequest("GET", "/orders/42", nil)); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if seen["id"] != "42" {
		t.Errorf("path params = %v", seen)
	}
}

type stubDelegate struct {
	out domain.Triple
	err error
}

func (d *stubDelegate) Invoke(context.Context, string, domain.Request) (domain.Triple, error) {
	return d.out, d.err
}

type stubResolver map[string]ports.Delegate

func (r stubResolver) Resolve(target string) (ports.Delegate, bool) {
	d, ok := r[target]
	return d, ok
}

func TestHandler_Call_Delegation(t *testing.T) {
	ok := &stubDelegate{out: domain.Triple{Status: http.StatusAccepted, Body: []byte("legacy")}}
	missing := &stubDelegate{err: ErrDelegationTargetNotFound}
	broken := &stubDelegate{err: errors.New("connection reset")}
	rt := testRuntime()
	rt.Delegates = stubResolver{"legacy": ok, "missing": missing, "broken": broken}

	t.Run("invokes delegate", func(t *testing.T) {
		h := MustHandler(Definition{Pattern: "/legacy", Delegate: &Delegation{Target: "legacy", Action: "index"}}, rt)
		out, err := h.Call(context.Background(), domain.NewRequest("GET", "/legacy", nil))
		if err != nil || out.Status != http.StatusAccepted || string(out.Body) != "legacy" {
			t.Fatalf("unexpected result %+v %v", out, err)
		}
	})

	for _, target := range []string{"unknown", "missing"} {
		t.Run("not found "+target, func(t *testing.T) {
			h := MustHandler(Definition{Pattern: "/legacy", Delegate: &Delegation{Target: target, Action: "index"}}, rt)
			out, err := h.Call(context.Background(), domain.NewRequest("GET", "/legacy", nil))
			if err != nil {
				t.Fatalf("not-found must become a response, got %v", err)
			}
			if out.Status != http.StatusInternalServerError {
				t.Errorf("status = %d", out.Status)
			}
			if body := decodeBody(t, out); body["code"] != domain.CodeDelegationTargetNotFound {
				t.Errorf("code = %q", body["code"])
			}
		})
	}

	t.Run("other errors propagate", func(t *testing.T) {
		h := MustHandler(Definition{Pattern: "/legacy", Delegate: &Delegation{Target: "broken"}}, rt)
		_, err := h.Call(context.Background(), domain.NewRequest("GET", "/legacy", nil))
		if err == nil || !errors.Is(err, broken.err) {
			t.Fatalf("expected wrapped delegate error, got %v", err)
		}
	})
}

type recordingObserver struct{ stages []string }

func (o *recordingObserver) ObserveStage(stage string, _ domain.Result, _ time.Duration) {
	o.stages = append(o.stages, stage)
}

func TestHandler_Call_ObserverSeesStages(t *testing.T) {
	obs := &recordingObserver{}
	rt := testRuntime()
	rt.Observer = obs
	h := MustHandler(Definition{Pattern: "/orders", Action: echoPath}, rt)

	if _, err := h.Call(context.Background(), authedRequest("GET", "/orders")); err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := []string{"authenticate", "authorize", "action", "render"}
	if len(obs.stages) != len(want) {
		t.Fatalf("observed %v", obs.stages)
	}
	for i := range want {
		if obs.stages[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, obs.stages[i], want[i])
		}
	}
}

func TestHandler_FreshTaskPerRequest(t *testing.T) {
	h := MustHandler(Definition{Pattern: "/orders", Action: echoPath}, testRuntime())
	a, _ := h.BuildTask()
	b, _ := h.BuildTask()
	if a.Stages()[0] == b.Stages()[0] {
		t.Error("tasks must not share stage instances")
	}
}

func TestHandler_Call_ConditionalLoopLimit(t *testing.T) {
	rt := testRuntime()
	rt.MaxStageInvocations = 1
	h := MustHandler(Definition{
		Pattern: "/orders",
		Action:  echoPath,
		Next:    func(_ domain.Result, current int) int { return current + 1 },
	}, rt)

	out, err := h.Call(context.Background(), authedRequest("GET", "/orders"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", out.Status, out.Body)
	}
	if body := decodeBody(t, out); body["code"] != domain.CodeStageLoopLimit || body["stage"] != "task" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_Call_ConditionalBranch(t *testing.T) {
	var ran []string
	tracked := func(name string, p pipeline.Performer) StageFactory {
		return func() *pipeline.Stage {
			return pipeline.NamedStage(name, pipeline.PerformerFunc(func(ctx context.Context, sc *domain.Context) domain.Result {
				ran = append(ran, name)
				return p.Perform(ctx, sc)
			}))
		}
	}
	skipOnce := func(res domain.Result, current int) int {
		if v, ok := res.Value().Get("skip"); ok && v == true {
			res.Value().Delete("skip")
			return current + 2
		}
		return current + 1
	}

	h := MustHandler(Definition{
		Pattern: "/orders",
		Authenticate: tracked("authenticate", pipeline.PerformerFunc(func(ctx context.Context, sc *domain.Context) domain.Result {
			sc.Set("skip", true)
			return pipeline.NoOp{}.Perform(ctx, sc)
		})),
		Authorize: tracked("authorize", &pipeline.Authorize{Decider: pipeline.DenyAll}),
		Action: tracked("action", &pipeline.Action{Logic: func(context.Context, domain.Request, *domain.Identity, *domain.Permissions) (any, error) {
			return map[string]bool{"ok": true}, nil
		}}),
		Next: skipOnce,
	}, testRuntime())
	if !h.Conditional() {
		t.Fatal("handler with Next should be conditional")
	}

	out, err := h.Call(context.Background(), authedRequest("GET", "/orders"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Status != http.StatusOK {
		t.Fatalf("status = %d, body %s", out.Status, out.Body)
	}
	if len(ran) != 2 || ran[0] != "authenticate" || ran[1] != "action" {
		t.Errorf("ran %v, want authenticate then action", ran)
	}
}
