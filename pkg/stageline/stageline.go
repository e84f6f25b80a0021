// Package stageline provides the public API for embedding the pipeline
// engine in another program.
package stageline

import (
	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/plugin"
	"github.com/tjfontaine/stageline/internal/route"
	"github.com/tjfontaine/stageline/internal/runtime"
)

// Engine hosts plugin handlers behind an HTTP server.
// See internal/runtime.Engine for full documentation.
type Engine = runtime.Engine

// Option is a functional option for configuring an Engine.
type Option = runtime.Option

// Types plugin authors build against.
type (
	Definition = route.Definition
	Handler    = route.Handler
	Factories  = plugin.Factories
	Params     = plugin.Params
	Stage      = pipeline.Stage
	Hook       = pipeline.Hook
)

// New creates a new Engine with the given options.
// Example:
//
//	engine, err := stageline.New(
//	    stageline.WithConfigFile("config.yaml"),
//	    stageline.WithUpstream(mux),
//	)
var New = runtime.New

// NewFactories creates an empty stage and hook factory set.
var NewFactories = plugin.NewFactories

// Configuration options
var (
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile
	WithLogger     = runtime.WithLogger
	WithEnv        = runtime.WithEnv

	// Plugins
	WithFactories   = runtime.WithFactories
	WithHostVersion = runtime.WithHostVersion
	WithEventStore  = runtime.WithEventStore

	// Routing
	WithUpstream        = runtime.WithUpstream
	WithDelegate        = runtime.WithDelegate
	WithDelegateHandler = runtime.WithDelegateHandler
)
