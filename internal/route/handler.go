// Package route implements routable handlers: a match predicate paired with
// either a four-stage pipeline or a delegation target, plus nested mounts
// that let one handler wrap another under a path prefix.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/pipeline"
)

// DefaultMethods is the allowed method set when a definition declares none.
var DefaultMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// ErrDelegationTargetNotFound is returned by delegates that cannot find the
// requested target or action.
var ErrDelegationTargetNotFound = errors.New("delegation target not found")

// StageFactory builds a fresh stage for one request.
type StageFactory func() *pipeline.Stage

// Delegation hands a request to an external handler instead of running the
// pipeline.
type Delegation struct {
	Target string
	Action string
}

// Definition declares a handler. It is evaluated once by NewHandler and
// held as immutable metadata afterwards.
type Definition struct {
	// Name identifies the handler. Derived from Pattern when empty.
	Name    string
	Pattern string
	// Methods is the allowed method set. Default: DefaultMethods.
	Methods []string

	Priority           int
	Version            string
	VersionRequirement string

	// Stage hooks. Authenticate, Authorize and Render default to the built-in
	// stages; Action has no default.
	Authenticate StageFactory
	Authorize    StageFactory
	Action       StageFactory
	Render       StageFactory

	// Next, when set, runs the pipeline conditionally: it picks the stage
	// index that follows each success, bounded by
	// Runtime.MaxStageInvocations.
	Next pipeline.NextStageFunc

	// Delegate, when set, bypasses the pipeline entirely.
	Delegate *Delegation

	// Wrappers are the hooks this handler runs around its mounted children.
	Wrappers map[pipeline.StageName]pipeline.Wrapper
}

// Runtime carries the collaborators handlers share.
type Runtime struct {
	Env       ports.Env
	Delegates ports.DelegateResolver
	Observer  ports.StageObserver
	Logger    *slog.Logger

	// MaxStageInvocations bounds conditional runs; zero uses the task default.
	MaxStageInvocations int

	// Now is the clock used for error timestamps. Default: time.Now.
	Now func() time.Time
}

func (rt *Runtime) now() time.Time {
	if rt != nil && rt.Now != nil {
		return rt.Now()
	}
	return time.Now()
}

func (rt *Runtime) logger() *slog.Logger {
	if rt != nil && rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}

// Routable is anything the router can dispatch to.
type Routable interface {
	Name() string
	Matches(req domain.Request) bool
	Call(ctx context.Context, req domain.Request) (domain.Triple, error)
}

// Handler is a routable unit built from a Definition.
type Handler struct {
	def     Definition
	matcher *Matcher
	methods map[string]struct{}
	rt      *Runtime

	mu     sync.RWMutex
	mounts []Mount
}

var _ Routable = (*Handler)(nil)

// NewHandler validates a definition and builds a handler.
func NewHandler(def Definition, rt *Runtime) (*Handler, error) {
	matcher, err := NewMatcher(def.Pattern)
	if err != nil {
		return nil, err
	}

	if def.Name == "" {
		def.Name = deriveName(def.Pattern)
	}
	if len(def.Methods) == 0 {
		def.Methods = DefaultMethods
	}
	methods := make(map[string]struct{}, len(def.Methods))
	normalized := make([]string, 0, len(def.Methods))
	for _, m := range def.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, dup := methods[m]; !dup {
			normalized = append(normalized, m)
		}
		methods[m] = struct{}{}
	}
	def.Methods = normalized

	for slot := range def.Wrappers {
		if !slot.Valid() {
			return nil, fmt.Errorf("handler %s: unknown wrapper stage %q", def.Name, slot)
		}
	}
	if def.Delegate != nil && def.Delegate.Target == "" {
		return nil, fmt.Errorf("handler %s: delegation target is empty", def.Name)
	}

	return &Handler{def: def, matcher: matcher, methods: methods, rt: rt}, nil
}

// MustHandler is NewHandler for static definitions; it panics on error.
func MustHandler(def Definition, rt *Runtime) *Handler {
	h, err := NewHandler(def, rt)
	if err != nil {
		panic(err)
	}
	return h
}

// deriveName turns "/api/users/{id}" into "api_users_id" and "/" into "root".
func deriveName(pattern string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(pattern) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "root"
	}
	return name
}

// Name returns the handler name, declared or derived from the pattern.
func (h *Handler) Name() string { return h.def.Name }

// Pattern returns the route pattern.
func (h *Handler) Pattern() string { return h.def.Pattern }

// Priority returns the dispatch priority; higher runs first.
func (h *Handler) Priority() int { return h.def.Priority }

// Version returns the declared plugin version.
func (h *Handler) Version() string { return h.def.Version }

// VersionRequirement returns the host version constraint, if any.
func (h *Handler) VersionRequirement() string { return h.def.VersionRequirement }

// Methods returns the allowed methods, upper-cased.
func (h *Handler) Methods() []string { return slices.Clone(h.def.Methods) }

// Delegation returns the delegation target, or nil for pipeline handlers.
func (h *Handler) Delegation() *Delegation { return h.def.Delegate }

// Conditional reports whether the pipeline runs through a branching function.
func (h *Handler) Conditional() bool { return h.def.Next != nil }

// Runtime returns the shared collaborators.
func (h *Handler) Runtime() *Runtime { return h.rt }

// Wrapper returns the hooks this handler runs around slot of its mounts.
func (h *Handler) Wrapper(slot pipeline.StageName) pipeline.Wrapper {
	return h.def.Wrappers[slot]
}

// Namespace is the Env namespace holding this handler's toggles.
func (h *Handler) Namespace() string {
	return "plugins." + strings.ReplaceAll(strings.ToLower(h.def.Name), "-", "_")
}

// Enabled reports the handler's Env toggle. Handlers without an Env are
// always enabled.
func (h *Handler) Enabled() bool {
	if h.rt == nil || h.rt.Env == nil {
		return true
	}
	return h.rt.Env.Enabled(h.Namespace())
}

// AllowsMethod reports whether method is in the allowed set.
func (h *Handler) AllowsMethod(method string) bool {
	_, ok := h.methods[strings.ToUpper(method)]
	return ok
}

// Matches is true when the handler is enabled, the method is allowed and the
// path matches the pattern.
func (h *Handler) Matches(req domain.Request) bool {
	if !h.Enabled() || !h.AllowsMethod(req.Method()) {
		return false
	}
	_, ok := h.matcher.Match(req.Path())
	return ok
}

// Call serves the request. Pipeline failures become error responses; only
// delegate errors other than a missing target are returned as errors.
func (h *Handler) Call(ctx context.Context, req domain.Request) (domain.Triple, error) {
	if h.def.Delegate != nil {
		return h.delegate(ctx, req)
	}

	task, stageErr := h.BuildTask()
	if stageErr != nil {
		return ErrorResponse(stageErr, h.rt.now()), nil
	}

	sc := domain.NewContext(req, domain.NewResponseBuffer())
	if params, ok := h.matcher.Match(req.Path()); ok && len(params) > 0 {
		sc.Set(domain.KeyPathParams, params)
	}
	sc.Env["handler"] = h.def.Name

	var res domain.Result
	if h.def.Next != nil {
		res = task.RunConditional(ctx, sc)
	} else {
		res = task.Run(ctx, sc)
	}
	if res.IsFailure() {
		h.rt.logger().Debug("pipeline failed",
			slog.String("handler", h.def.Name),
			slog.String("stage", res.Err().Stage),
			slog.String("code", res.Err().Code))
		return ErrorResponse(res.Err(), h.rt.now()), nil
	}
	return res.Value().Response.Finish(), nil
}

// BuildTask assembles a fresh task from the four stage hooks.
func (h *Handler) BuildTask() (*pipeline.Task, *domain.StageError) {
	if h.def.Action == nil {
		return nil, domain.ErrNotImplementedAction()
	}

	authenticate := slotStage(h.def.Authenticate, pipeline.StageAuthenticate, &pipeline.Authenticate{})
	authorize := slotStage(h.def.Authorize, pipeline.StageAuthorize, &pipeline.Authorize{})
	action := slotStage(h.def.Action, pipeline.StageAction, nil)
	render := slotStage(h.def.Render, pipeline.StageRender, &pipeline.Render{})

	task := &pipeline.Task{Next: h.def.Next}
	if h.rt != nil {
		task.MaxInvocations = h.rt.MaxStageInvocations
		task.Observe(h.rt.Observer)
	}
	for _, s := range []*pipeline.Stage{authenticate, authorize, action, render} {
		if err := task.AddStage(s); err != nil {
			var stageErr *domain.StageError
			if errors.As(err, &stageErr) {
				return nil, stageErr.WithStage("task")
			}
			return nil, domain.ErrInvalidStageArgument().WithStage("task")
		}
	}
	return task, nil
}

func slotStage(factory StageFactory, slot pipeline.StageName, fallback pipeline.Performer) *pipeline.Stage {
	if factory != nil {
		return factory()
	}
	if fallback == nil {
		return nil
	}
	return pipeline.NamedStage(string(slot), fallback)
}

func (h *Handler) delegate(ctx context.Context, req domain.Request) (domain.Triple, error) {
	d := h.def.Delegate
	notFound := domain.NewStageError(domain.KindDelegation, domain.CodeDelegationTargetNotFound,
		fmt.Sprintf("Delegation target %s#%s not found", d.Target, d.Action)).
		WithStage("delegate").
		WithStatus(http.StatusInternalServerError)

	if h.rt == nil || h.rt.Delegates == nil {
		return ErrorResponse(notFound, h.rt.now()), nil
	}
	target, ok := h.rt.Delegates.Resolve(d.Target)
	if !ok {
		return ErrorResponse(notFound, h.rt.now()), nil
	}

	out, err := target.Invoke(ctx, d.Action, req)
	if errors.Is(err, ErrDelegationTargetNotFound) {
		return ErrorResponse(notFound, h.rt.now()), nil
	}
	if err != nil {
		return domain.Triple{}, fmt.Errorf("delegate %s#%s: %w", d.Target, d.Action, err)
	}
	return out, nil
}
