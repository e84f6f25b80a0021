package route

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/pipeline"
)

// Mount binds a child handler under a parent at an absolute path prefix.
type Mount struct {
	Prefix string
	Child  *Handler
}

// mountMu serializes mount graph changes so cycle checks see a stable graph.
var mountMu sync.Mutex

// Mount attaches child under this handler at rel, which is joined to the
// base of the handler's own pattern. Mounting a handler that already reaches
// this one fails with a mount_cycle configuration error.
func (h *Handler) Mount(rel string, child *Handler) error {
	if child == nil {
		return domain.NewStageError(domain.KindConfiguration, domain.CodeInvalidStageArgument,
			"cannot mount a nil handler").WithStage("mount")
	}

	mountMu.Lock()
	defer mountMu.Unlock()

	if child == h || reaches(child, h) {
		return domain.NewStageError(domain.KindConfiguration, domain.CodeMountCycle,
			fmt.Sprintf("mounting %s under %s creates a cycle", child.Name(), h.Name())).WithStage("mount")
	}

	m := Mount{Prefix: JoinPrefix(h.matcher.Base(), rel), Child: child}
	h.mu.Lock()
	h.mounts = append(h.mounts, m)
	h.mu.Unlock()
	return nil
}

// reaches reports whether target is mounted anywhere below from.
func reaches(from, target *Handler) bool {
	for _, m := range from.Mounts() {
		if m.Child == target || reaches(m.Child, target) {
			return true
		}
	}
	return false
}

// Mounts returns the handler's mounts in declaration order.
func (h *Handler) Mounts() []Mount {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Mount, len(h.mounts))
	copy(out, h.mounts)
	return out
}

// Routes expands the handler into its dispatch candidates: nested mounts
// first, deepest first, then the handler itself.
func (h *Handler) Routes() []Routable {
	var out []Routable
	for _, m := range h.Mounts() {
		for _, r := range m.Child.Routes() {
			out = append(out, &NestedRoute{Parent: h, Prefix: m.Prefix, Child: r})
		}
	}
	return append(out, h)
}

// JoinPrefix joins a mount path onto a parent base. The result is cleaned
// and always absolute.
func JoinPrefix(base, rel string) string {
	return path.Join("/", base, rel)
}

// StripPrefix removes prefix from p on a segment boundary. It returns false
// when p is not under prefix; an emptied path becomes "/".
func StripPrefix(p, prefix string) (string, bool) {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return p, true
	}
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	rest := p[len(prefix):]
	if rest == "" {
		return "/", true
	}
	if rest[0] != '/' {
		return "", false
	}
	return rest, true
}

// NestedRoute is a parent to child mount as a dispatch candidate. The
// parent's wrapper hooks run around the child's response.
type NestedRoute struct {
	Parent *Handler
	Prefix string
	Child  Routable
}

var _ Routable = (*NestedRoute)(nil)

// Name returns "parent/child".
func (n *NestedRoute) Name() string {
	return n.Parent.Name() + "/" + n.Child.Name()
}

// Matches is true when the path is under the prefix and the child matches
// the stripped path.
func (n *NestedRoute) Matches(req domain.Request) bool {
	stripped, ok := StripPrefix(req.Path(), n.Prefix)
	if !ok {
		return false
	}
	return n.Child.Matches(domain.WithPath(req, stripped))
}

// Call runs the parent's before hooks, the child on the stripped path, and
// the parent's after hooks over the child's response.
func (n *NestedRoute) Call(ctx context.Context, req domain.Request) (domain.Triple, error) {
	rt := n.Parent.Runtime()

	sc := domain.NewContext(req, domain.NewResponseBuffer())
	sc.Env["mount_prefix"] = n.Prefix
	sc.Env["handler"] = n.Parent.Name()

	before := n.runHooks(ctx, sc, func(w pipeline.Wrapper) []pipeline.Hook { return w.Before })
	if before.IsFailure() {
		return ErrorResponse(before.Err(), rt.now()), nil
	}
	sc = before.Value()

	stripped, ok := StripPrefix(req.Path(), n.Prefix)
	if !ok {
		stripped = req.Path()
	}
	out, err := n.Child.Call(ctx, domain.WithPath(req, stripped))
	if err != nil {
		return domain.Triple{}, err
	}

	sc.Response = domain.ResponseFromTriple(out)
	after := n.runHooks(ctx, sc, func(w pipeline.Wrapper) []pipeline.Hook { return w.After })
	if after.IsFailure() {
		return ErrorResponse(after.Err(), rt.now()), nil
	}
	return after.Value().Response.Finish(), nil
}

// runHooks walks the four pipeline slots in their fixed order.
func (n *NestedRoute) runHooks(ctx context.Context, sc *domain.Context, pick func(pipeline.Wrapper) []pipeline.Hook) domain.Result {
	current := domain.Success(sc)
	for _, slot := range pipeline.PipelineStages {
		hooks := pick(n.Parent.Wrapper(slot))
		if len(hooks) == 0 {
			continue
		}
		current = pipeline.RunHooks(ctx, slot, hooks, current.Value())
		if current.IsFailure() {
			return current
		}
	}
	return current
}
