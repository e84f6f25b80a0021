package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/route"
)

// StageSpec selects a registered factory and passes it settings.
type StageSpec struct {
	Use  string `koanf:"use"`
	With Params `koanf:"with"`
}

// WrapperSpec lists the hooks a parent runs around one slot of its mounts.
type WrapperSpec struct {
	Before []StageSpec `koanf:"before"`
	After  []StageSpec `koanf:"after"`
}

// DelegateSpec names an external delegation target.
type DelegateSpec struct {
	Target string `koanf:"target"`
	Action string `koanf:"action"`
}

// MountSpec mounts a previously defined plugin under this one.
type MountSpec struct {
	Path   string `koanf:"path"`
	Plugin string `koanf:"plugin"`
}

// Manifest is the declarative form of one plugin.
type Manifest struct {
	Name               string                 `koanf:"name"`
	Pattern            string                 `koanf:"pattern"`
	Methods            []string               `koanf:"methods"`
	Priority           int                    `koanf:"priority"`
	Version            string                 `koanf:"version"`
	VersionRequirement string                 `koanf:"version_requirement"`
	Stages             map[string]StageSpec   `koanf:"stages"`
	Next               *StageSpec             `koanf:"next"`
	Delegate           *DelegateSpec          `koanf:"delegate"`
	Mounts             []MountSpec            `koanf:"mounts"`
	Wrappers           map[string]WrapperSpec `koanf:"wrappers"`
}

// ManifestLoader loads YAML plugin manifests. A file holds either one
// manifest or a "plugins" list; every manifest it holds is defined in the
// catalog, or none is.
type ManifestLoader struct {
	Catalog   *Catalog
	Factories *Factories
	Runtime   *route.Runtime
	Logger    *slog.Logger
}

var _ ports.Loader = (*ManifestLoader)(nil)

// Load implements ports.Loader. Failures are returned as *LoadError.
func (l *ManifestLoader) Load(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return &LoadError{Path: path, Err: err}
	}

	manifests, err := ReadManifests(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}

	pending := make(map[string]*route.Handler, len(manifests))
	built := make([]*route.Handler, 0, len(manifests))
	for i, m := range manifests {
		h, err := l.Build(m, pending)
		if err != nil {
			name := m.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return &LoadError{Path: path, Err: fmt.Errorf("plugin %s: %w", name, err)}
		}
		pending[h.Name()] = h
		built = append(built, h)
	}

	for _, h := range built {
		l.Catalog.Define(h)
	}
	l.logger().Debug("plugin manifest loaded",
		slog.String("path", path),
		slog.Int("plugins", len(built)))
	return nil
}

func (l *ManifestLoader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// ReadManifests parses a manifest file.
func ReadManifests(path string) ([]Manifest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}

	if k.Exists("plugins") {
		var list []Manifest
		if err := k.Unmarshal("plugins", &list); err != nil {
			return nil, fmt.Errorf("decode plugins: %w", err)
		}
		return list, nil
	}

	var m Manifest
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return []Manifest{m}, nil
}

// Build turns a manifest into a handler. Mount targets are looked up in
// pending first and then in the catalog.
func (l *ManifestLoader) Build(m Manifest, pending map[string]*route.Handler) (*route.Handler, error) {
	def := route.Definition{
		Name:               m.Name,
		Pattern:            m.Pattern,
		Methods:            m.Methods,
		Priority:           m.Priority,
		Version:            m.Version,
		VersionRequirement: m.VersionRequirement,
	}

	for slot, spec := range m.Stages {
		name := pipeline.StageName(slot)
		if !name.Valid() {
			return nil, fmt.Errorf("unknown stage slot %q", slot)
		}
		factory, err := l.Factories.Stage(name, spec.Use, spec.With)
		if err != nil {
			return nil, err
		}
		switch name {
		case pipeline.StageAuthenticate:
			def.Authenticate = factory
		case pipeline.StageAuthorize:
			def.Authorize = factory
		case pipeline.StageAction:
			def.Action = factory
		case pipeline.StageRender:
			def.Render = factory
		}
	}

	if m.Next != nil {
		next, err := l.Factories.Branch(m.Next.Use, m.Next.With)
		if err != nil {
			return nil, err
		}
		def.Next = next
	}

	if m.Delegate != nil {
		def.Delegate = &route.Delegation{Target: m.Delegate.Target, Action: m.Delegate.Action}
	}

	if len(m.Wrappers) > 0 {
		def.Wrappers = make(map[pipeline.StageName]pipeline.Wrapper, len(m.Wrappers))
		for slot, spec := range m.Wrappers {
			var w pipeline.Wrapper
			var err error
			if w.Before, err = l.hooks(spec.Before); err != nil {
				return nil, err
			}
			if w.After, err = l.hooks(spec.After); err != nil {
				return nil, err
			}
			def.Wrappers[pipeline.StageName(slot)] = w
		}
	}

	h, err := route.NewHandler(def, l.Runtime)
	if err != nil {
		return nil, err
	}

	for _, ms := range m.Mounts {
		child, ok := pending[ms.Plugin]
		if !ok {
			child, ok = l.Catalog.Lookup(ms.Plugin)
		}
		if !ok {
			return nil, fmt.Errorf("mount %s: plugin %q is not defined", ms.Path, ms.Plugin)
		}
		if err := h.Mount(ms.Path, child); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (l *ManifestLoader) hooks(specs []StageSpec) ([]pipeline.Hook, error) {
	hooks := make([]pipeline.Hook, 0, len(specs))
	for _, s := range specs {
		h, err := l.Factories.Hook(s.Use, s.With)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}
