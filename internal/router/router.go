// Package router implements the fallback router: requests go to the
// upstream host router first and fall through to the configured handler
// list only when the upstream has no route.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/route"
)

// NotFoundBody is the response body when no handler matches.
type NotFoundBody struct {
	Error     string `json:"error"`
	Path      string `json:"path"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
}

// Router wraps an upstream and dispatches unrouted requests to handlers.
type Router struct {
	upstream ports.Upstream
	handlers *route.List
	logger   *slog.Logger

	// Now stamps 404 bodies. Default: time.Now.
	Now func() time.Time
}

// New creates a router. A nil upstream sends every request to the handler
// list; a nil logger uses slog.Default.
func New(upstream ports.Upstream, handlers *route.List, logger *slog.Logger) *Router {
	if handlers == nil {
		handlers = route.NewList()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{upstream: upstream, handlers: handlers, logger: logger}
}

// Handlers returns the handler list the router searches.
func (r *Router) Handlers() *route.List { return r.handlers }

// Call serves req through the upstream. Only ports.ErrRouteNotFound is
// intercepted; every other upstream error is returned unchanged.
func (r *Router) Call(ctx context.Context, req domain.Request) (domain.Triple, error) {
	if r.upstream != nil {
		out, err := r.upstream.Call(ctx, req)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ports.ErrRouteNotFound) {
			return domain.Triple{}, err
		}
	}
	return r.Dispatch(ctx, req)
}

// Dispatch invokes the first matching handler candidate, or returns 404.
func (r *Router) Dispatch(ctx context.Context, req domain.Request) (domain.Triple, error) {
	target, ok := r.Match(req)
	if !ok {
		r.logger.Debug("no handler matched",
			slog.String("method", req.Method()),
			slog.String("path", req.Path()))
		return r.notFound(req), nil
	}

	r.logger.Debug("dispatching to handler",
		slog.String("handler", target.Name()),
		slog.String("path", req.Path()))
	return target.Call(ctx, req)
}

// Match returns the first candidate accepting req. Candidates are searched
// in list order, and within a handler its nested mounts come before the
// handler itself.
func (r *Router) Match(req domain.Request) (route.Routable, bool) {
	for _, h := range r.handlers.Snapshot() {
		for _, candidate := range h.Routes() {
			if candidate.Matches(req) {
				return candidate, true
			}
		}
	}
	return nil, false
}

func (r *Router) notFound(req domain.Request) domain.Triple {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return route.JSONResponse(http.StatusNotFound, NotFoundBody{
		Error:     "Route not found",
		Path:      req.Path(),
		Method:    req.Method(),
		Timestamp: now().UTC().Format(time.RFC3339),
	})
}
