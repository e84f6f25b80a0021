package route

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/pipeline"
)

func mountedPair(t *testing.T, wrappers map[pipeline.StageName]pipeline.Wrapper) (*Handler, *Handler) {
	t.Helper()
	parent := MustHandler(Definition{Name: "api", Pattern: "/api/*", Wrappers: wrappers}, testRuntime())
	child := MustHandler(Definition{Name: "users", Pattern: "/users", Action: echoPath}, testRuntime())
	if err := parent.Mount("/v1", child); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return parent, child
}

func TestMount_Prefix(t *testing.T) {
	parent, _ := mountedPair(t, nil)
	mounts := parent.Mounts()
	if len(mounts) != 1 || mounts[0].Prefix != "/api/v1" {
		t.Fatalf("unexpected mounts %+v", mounts)
	}
}

func TestNestedRoute_ChildSeesStrippedPath(t *testing.T) {
	parent, _ := mountedPair(t, nil)
	routes := parent.Routes()
	if len(routes) != 2 || routes[1] != Routable(parent) {
		t.Fatalf("expected nested candidate then parent, got %d routes", len(routes))
	}
	nested := routes[0]

	req := authedRequest("GET", "/api/v1/users")
	if !nested.Matches(req) {
		t.Fatal("nested route should match /api/v1/users")
	}
	out, err := nested.Call(context.Background(), req)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if body := decodeBody(t, out); body["path"] != "/users" {
		t.Errorf("child saw path %q, want /users", body["path"])
	}
}

func TestNestedRoute_RoundTrip(t *testing.T) {
	parent, child := mountedPair(t, nil)
	nested := parent.Routes()[0]

	viaMount, err := nested.Call(context.Background(), authedRequest("GET", "/api/v1/users"))
	if err != nil {
		t.Fatalf("nested Call: %v", err)
	}
	direct, err := child.Call(context.Background(), authedRequest("GET", "/users"))
	if err != nil {
		t.Fatalf("direct Call: %v", err)
	}
	if viaMount.Status != direct.Status || string(viaMount.Body) != string(direct.Body) {
		t.Errorf("mounted response differs:\n mount:  %d %s\n direct: %d %s",
			viaMount.Status, viaMount.Body, direct.Status, direct.Body)
	}
}

func TestNestedRoute_Matches(t *testing.T) {
	parent, _ := mountedPair(t, nil)
	nested := parent.Routes()[0]

	tests := []struct {
		path string
		want bool
	}{
		{"/api/v1/users", true},
		{"/api/v1/orders", false},
		{"/api/v10/users", false},
		{"/v1/users", false},
		{"/api/v1", false},
	}
	for _, tt := range tests {
		if got := nested.Matches(authedRequest("GET", tt.path)); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNestedRoute_RootFallback(t *testing.T) {
	parent := MustHandler(Definition{Name: "api", Pattern: "/api"}, testRuntime())
	root := MustHandler(Definition{Name: "index", Pattern: "/", Action: echoPath}, testRuntime())
	if err := parent.Mount("/v2", root); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	nested := parent.Routes()[0]

	req := authedRequest("GET", "/api/v2")
	if !nested.Matches(req) {
		t.Fatal("emptied path should fall back to /")
	}
	out, _ := nested.Call(context.Background(), req)
	if body := decodeBody(t, out); body["path"] != "/" {
		t.Errorf("child saw %q", body["path"])
	}
}

func TestNestedRoute_Hooks(t *testing.T) {
	var order []string
	record := func(name string) pipeline.Hook {
		return func(_ context.Context, sc *domain.Context) domain.Result {
			order = append(order, name)
			return domain.Success(sc)
		}
	}
	stamp := func(_ context.Context, sc *domain.Context) domain.Result {
		order = append(order, "after:render")
		sc.Response.Header().Set("X-Wrapped", "api")
		return domain.Success(sc)
	}

	parent, _ := mountedPair(t, map[pipeline.StageName]pipeline.Wrapper{
		pipeline.StageRender:       {Before: []pipeline.Hook{record("before:render")}, After: []pipeline.Hook{stamp}},
		pipeline.StageAuthenticate: {Before: []pipeline.Hook{record("before:authenticate:1"), record("before:authenticate:2")}},
	})

	out, err := parent.Routes()[0].Call(context.Background(), authedRequest("GET", "/api/v1/users"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Headers.Get("X-Wrapped") != "api" {
		t.Error("after hook header missing")
	}
	if body := decodeBody(t, out); body["path"] != "/users" {
		t.Errorf("child body changed: %v", body)
	}

	want := []string{"before:authenticate:1", "before:authenticate:2", "before:render", "after:render"}
	if len(order) != len(want) {
		t.Fatalf("hook order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestNestedRoute_BeforeHookFailureAborts(t *testing.T) {
	childCalled := false
	deny := func(_ context.Context, _ *domain.Context) domain.Result {
		return domain.Failure(domain.NewStageError(domain.KindAuthentication, "blocked", "Blocked by parent"))
	}
	parent := MustHandler(Definition{Name: "api", Pattern: "/api/*", Wrappers: map[pipeline.StageName]pipeline.Wrapper{
		pipeline.StageAuthenticate: {Before: []pipeline.Hook{deny}},
	}}, testRuntime())
	child := MustHandler(Definition{Name: "users", Pattern: "/users", Action: func() *pipeline.Stage {
		childCalled = true
		return echoPath()
	}}, testRuntime())
	if err := parent.Mount("/v1", child); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	out, err := parent.Routes()[0].Call(context.Background(), authedRequest("GET", "/api/v1/users"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", out.Status)
	}
	if childCalled {
		t.Error("child must not run after a before-hook failure")
	}
}

func TestNestedRoute_AfterHookFailure(t *testing.T) {
	fail := func(_ context.Context, _ *domain.Context) domain.Result {
		return domain.Failure(domain.NewStageError(domain.KindRender, "too_large", "Response too large").WithStatus(http.StatusBadGateway))
	}
	parent, _ := mountedPair(t, map[pipeline.StageName]pipeline.Wrapper{
		pipeline.StageRender: {After: []pipeline.Hook{fail}},
	})

	out, _ := parent.Routes()[0].Call(context.Background(), authedRequest("GET", "/api/v1/users"))
	if out.Status != http.StatusBadGateway {
		t.Errorf("status = %d", out.Status)
	}
	if body := decodeBody(t, out); body["stage"] != "render" || body["code"] != "too_large" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestNestedRoute_DeepNesting(t *testing.T) {
	api := MustHandler(Definition{Name: "api", Pattern: "/api/*"}, testRuntime())
	v1 := MustHandler(Definition{Name: "v1", Pattern: "/*"}, testRuntime())
	users := MustHandler(Definition{Name: "users", Pattern: "/users", Action: echoPath}, testRuntime())
	if err := v1.Mount("/admin", users); err != nil {
		t.Fatal(err)
	}
	if err := api.Mount("/v1", v1); err != nil {
		t.Fatal(err)
	}

	req := authedRequest("GET", "/api/v1/admin/users")
	var matched Routable
	for _, r := range api.Routes() {
		if r.Matches(req) {
			matched = r
			break
		}
	}
	if matched == nil || matched.Name() != "api/v1/users" {
		t.Fatalf("expected api/v1/users, got %v", matched)
	}
	out, _ := matched.Call(context.Background(), req)
	if body := decodeBody(t, out); body["path"] != "/users" {
		t.Errorf("innermost child saw %q", body["path"])
	}
}

func TestMount_RejectsCycles(t *testing.T) {
	a := MustHandler(Definition{Name: "a", Pattern: "/a/*"}, nil)
	b := MustHandler(Definition{Name: "b", Pattern: "/b/*"}, nil)
	c := MustHandler(Definition{Name: "c", Pattern: "/c/*"}, nil)

	if err := a.Mount("/b", b); err != nil {
		t.Fatal(err)
	}
	if err := b.Mount("/c", c); err != nil {
		t.Fatal(err)
	}

	for name, fn := range map[string]func() error{
		"self":     func() error { return a.Mount("/a", a) },
		"indirect": func() error { return c.Mount("/a", a) },
	} {
		err := fn()
		var stageErr *domain.StageError
		if !errors.As(err, &stageErr) || stageErr.Code != domain.CodeMountCycle {
			t.Errorf("%s: expected mount_cycle, got %v", name, err)
		}
	}
	if len(c.Mounts()) != 0 {
		t.Error("rejected mount must not be recorded")
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		path, prefix, want string
		ok                 bool
	}{
		{"/api/v1/users", "/api/v1", "/users", true},
		{"/api/v1", "/api/v1", "/", true},
		{"/api/v1/", "/api/v1/", "/", true},
		{"/api/v10", "/api/v1", "", false},
		{"/other", "/api", "", false},
		{"/x", "/", "/x", true},
	}
	for _, tt := range tests {
		got, ok := StripPrefix(tt.path, tt.prefix)
		if got != tt.want || ok != tt.ok {
			t.Errorf("StripPrefix(%q, %q) = %q, %v; want %q, %v", tt.path, tt.prefix, got, ok, tt.want, tt.ok)
		}
	}
}
