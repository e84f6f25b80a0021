// Package ports defines the interfaces the core consumes from its
// collaborators: configuration lookup, plugin loading, delegation targets,
// the upstream host router and stage observers.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// ErrRouteNotFound is returned by an Upstream that has no route for a request.
// It is the only upstream condition the fallback router intercepts.
var ErrRouteNotFound = errors.New("route not found")

// Env is a namespaced, string-keyed configuration lookup.
type Env interface {
	// String returns the raw value of namespace.key.
	String(namespace, key string) (string, bool)
	// Int returns namespace.key parsed as an int.
	Int(namespace, key string) (int, bool)
	// Bool returns namespace.key parsed as a bool.
	Bool(namespace, key string) (bool, bool)
	// Exists reports whether namespace.key is set.
	Exists(namespace, key string) bool
	// Enabled reports the namespace's on/off toggle. Unset means enabled.
	Enabled(namespace string) bool
}

// Loader loads a plugin file. Loading is side-effecting: a successful load
// defines zero or more handlers in the loader's catalog.
type Loader interface {
	Load(ctx context.Context, path string) error
}

// Delegate is an external handler a route can hand a request to instead of
// running its own pipeline.
type Delegate interface {
	Invoke(ctx context.Context, action string, req domain.Request) (domain.Triple, error)
}

// DelegateResolver finds delegates by target name.
type DelegateResolver interface {
	Resolve(target string) (Delegate, bool)
}

// Upstream is the host router the fallback router wraps.
type Upstream interface {
	// Call serves the request or returns ErrRouteNotFound.
	Call(ctx context.Context, req domain.Request) (domain.Triple, error)
}

// StageObserver is notified after every stage call.
type StageObserver interface {
	ObserveStage(stage string, res domain.Result, elapsed time.Duration)
}
