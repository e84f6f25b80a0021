// Package runtime assembles a running stageline instance: configuration,
// plugin discovery, the fallback router and the HTTP server, with
// lifecycle management.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/stageline/internal/auth"
	"github.com/tjfontaine/stageline/internal/controlplane"
	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/env"
	"github.com/tjfontaine/stageline/internal/metrics"
	"github.com/tjfontaine/stageline/internal/pkg/config"
	"github.com/tjfontaine/stageline/internal/plugin"
	"github.com/tjfontaine/stageline/internal/registration"
	"github.com/tjfontaine/stageline/internal/route"
	"github.com/tjfontaine/stageline/internal/router"
	"github.com/tjfontaine/stageline/internal/server"
	"github.com/tjfontaine/stageline/internal/storage"
	"github.com/tjfontaine/stageline/internal/telemetry"
)

// Version is the host version plugins are checked against unless the
// configuration or WithHostVersion says otherwise. Set at build time.
var Version = "0.1.0"

// Engine owns every long-lived component of a stageline instance.
type Engine struct {
	// Dependencies (injected via options)
	cfg         *config.Config
	logger      *slog.Logger
	env         ports.Env
	factories   *plugin.Factories
	upstream    *chi.Mux
	delegates   server.Delegates
	hostVersion string
	events      ports.EventStore

	// Assembled in New
	authn     *auth.Authenticator
	metrics   *metrics.Collector
	catalog   *plugin.Catalog
	registry  *plugin.Registry
	handlers  *route.List
	discovery *plugin.Discovery
	router    *router.Router
	server    *server.Server

	// Lifecycle management
	ctx           context.Context
	cancel        context.CancelFunc
	stopTelemetry telemetry.ShutdownFunc
	mu            sync.Mutex
}

// New assembles an engine. Configuration is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:    slog.Default(),
		delegates: make(server.Delegates),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if e.cfg == nil {
		return nil, fmt.Errorf("configuration required (use WithConfig or WithConfigFile)")
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.env == nil {
		processEnv, err := env.Load(env.DefaultPrefix)
		if err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
		e.env = processEnv
	}
	if e.factories == nil {
		e.factories = plugin.NewFactories()
	}
	if e.upstream == nil {
		e.upstream = e.defaultUpstream()
	}
	if e.events == nil {
		store, err := storage.Open(e.cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		e.events = store
	}

	keys := make([]auth.Key, 0, len(e.cfg.Auth.APIKeys))
	for _, k := range e.cfg.Auth.APIKeys {
		keys = append(keys, auth.Key{KeyHash: k.KeyHash, UserID: k.UserID, Description: k.Description})
	}
	e.authn = auth.NewAuthenticator(keys)

	deps := registration.Deps{}
	if e.authn.Len() > 0 {
		deps.APIKeys = e.authn
	}
	registration.RegisterBuiltins(e.factories, deps)

	if err := e.assemble(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) assemble() error {
	e.registry = plugin.NewRegistry()
	e.handlers = route.NewList()
	e.catalog = plugin.NewCatalog()
	e.metrics = metrics.New(metrics.WithPluginCount(e.registry.Count))

	host := e.hostVersion
	if host == "" {
		host = e.cfg.Plugins.HostVersion
	}
	if host == "" {
		host = Version
	}
	mode, err := plugin.ParseMode(e.cfg.Plugins.VersionCheck)
	if err != nil {
		return err
	}
	checker, err := plugin.NewVersionChecker(host, mode, e.logger)
	if err != nil {
		return fmt.Errorf("host version: %w", err)
	}

	rt := &route.Runtime{
		Env:                 e.env,
		Delegates:           e.delegates,
		Observer:            e.metrics,
		Logger:              e.logger,
		MaxStageInvocations: e.cfg.Pipeline.MaxStageInvocations,
	}
	e.discovery = &plugin.Discovery{
		Dirs:    e.cfg.Plugins.Dirs,
		Pattern: e.cfg.Plugins.Pattern,
		Loader: &plugin.ManifestLoader{
			Catalog:   e.catalog,
			Factories: e.factories,
			Runtime:   rt,
			Logger:    e.logger,
		},
		Catalog:  e.catalog,
		Checker:  checker,
		Registry: e.registry,
		Handlers: e.handlers,
		Events:   e.events,
		Logger:   e.logger,
	}
	e.router = router.New(server.NewChiUpstream(e.upstream), e.handlers, e.logger)
	e.server = server.New(e.cfg.Server.Port, e.cfg.Server.Timeout, e.logger)
	e.routes()
	return nil
}

// defaultUpstream is the host router used when none is given.
func (e *Engine) defaultUpstream() *chi.Mux {
	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, Version)
	})
	return mux
}

func (e *Engine) routes() {
	r := e.server.Router

	if e.cfg.Admin.Enabled {
		var admin http.Handler = controlplane.NewServer(e.registry, e.handlers, e.discovery, e.events, e.logger)
		if e.authn.Len() > 0 {
			admin = server.AuthMiddleware(e.authn)(admin)
		}
		r.Mount("/admin", admin)
		e.logger.Info("registered control plane", slog.String("path", "/admin"))
	}
	r.Handle("/metrics", e.metrics.Handler())
	e.server.Fallback(server.Handler(e.router, e.logger))
}

// Load runs plugin discovery once and returns what was registered.
func (e *Engine) Load(ctx context.Context) ([]*route.Handler, error) {
	return e.discovery.ScanAndRegister(ctx)
}

// Start loads plugins, starts the optional directory watch and tracing,
// and serves HTTP in the background until Shutdown.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctx, e.cancel = context.WithCancel(ctx)

	e.stopTelemetry = telemetry.Noop
	if e.cfg.Telemetry.Enabled {
		stop, err := telemetry.InitTracer("stageline", Version, nil, e.logger)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		e.stopTelemetry = stop
	}

	registered, err := e.Load(e.ctx)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}

	if e.cfg.Plugins.Watch {
		w := &plugin.Watcher{Discovery: e.discovery, Logger: e.logger}
		if err := w.Watch(e.ctx); err != nil {
			e.logger.Warn("plugin watch disabled", slog.String("error", err.Error()))
		}
	}

	go func() {
		if err := e.server.Start(); err != nil {
			e.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	e.logger.Info("stageline started",
		slog.Int("port", e.cfg.Server.Port),
		slog.Int("plugins", len(registered)),
		slog.String("host_version", e.discovery.Checker.Host()))
	return nil
}

// Shutdown gracefully stops the engine.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Info("shutting down")
	if e.cancel != nil {
		e.cancel()
	}

	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return err
	}
	if e.stopTelemetry != nil {
		if err := e.stopTelemetry(ctx); err != nil {
			e.logger.Error("failed to flush traces", slog.String("error", err.Error()))
		}
	}
	if err := e.events.Close(); err != nil {
		e.logger.Error("failed to close event store", slog.String("error", err.Error()))
	}

	e.logger.Info("shutdown complete")
	return nil
}

// Handler returns the HTTP handler the server serves.
func (e *Engine) Handler() http.Handler { return e.server }

// Events returns the plugin lifecycle journal.
func (e *Engine) Events() ports.EventStore { return e.events }

// Registry returns the plugin registry.
func (e *Engine) Registry() *plugin.Registry { return e.registry }

// Handlers returns the active handler list.
func (e *Engine) Handlers() *route.List { return e.handlers }

// Router returns the fallback router.
func (e *Engine) Router() *router.Router { return e.router }

// Factories returns the stage and hook factories.
func (e *Engine) Factories() *plugin.Factories { return e.factories }
