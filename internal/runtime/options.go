package runtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/pkg/config"
	"github.com/tjfontaine/stageline/internal/plugin"
	"github.com/tjfontaine/stageline/internal/server"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		e.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from path plus STAGELINE_ variables.
func WithConfigFile(path string) Option {
	return func(e *Engine) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		e.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithEnv sets the environment plugins read their toggles from. Default:
// the STAGELINE_ process environment.
func WithEnv(env ports.Env) Option {
	return func(e *Engine) error {
		e.env = env
		return nil
	}
}

// WithFactories sets the stage and hook factories manifests resolve
// against. The built-ins are added to it unless already present.
func WithFactories(f *plugin.Factories) Option {
	return func(e *Engine) error {
		e.factories = f
		return nil
	}
}

// WithUpstream sets the host router requests are offered to before the
// plugin handlers.
func WithUpstream(mux *chi.Mux) Option {
	return func(e *Engine) error {
		e.upstream = mux
		return nil
	}
}

// WithDelegate registers a delegation target.
func WithDelegate(name string, d ports.Delegate) Option {
	return func(e *Engine) error {
		if name == "" || d == nil {
			return fmt.Errorf("delegate needs a name and an implementation")
		}
		e.delegates[name] = d
		return nil
	}
}

// WithDelegateHandler registers an http.Handler as a delegation target.
func WithDelegateHandler(name string, h http.Handler) Option {
	return WithDelegate(name, &server.HandlerDelegate{Handler: h})
}

// WithHostVersion overrides the version plugins are checked against.
func WithHostVersion(version string) Option {
	return func(e *Engine) error {
		e.hostVersion = version
		return nil
	}
}

// WithEventStore sets the plugin lifecycle journal. Default: the store named
// by the storage configuration.
func WithEventStore(store ports.EventStore) Option {
	return func(e *Engine) error {
		e.events = store
		return nil
	}
}
