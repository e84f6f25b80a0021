package plugin

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/stageline/internal/route"
)

// MountInfo describes one mounted child in a Metadata record.
type MountInfo struct {
	Prefix string `json:"prefix"`
	Child  string `json:"child"`
}

// Metadata is the registry record for one plugin.
type Metadata struct {
	Name               string      `json:"name"`
	Version            string      `json:"version,omitempty"`
	VersionRequirement string      `json:"version_requirement,omitempty"`
	Priority           int         `json:"priority"`
	RoutePattern       string      `json:"route_pattern"`
	Methods            []string    `json:"http_methods"`
	Mounts             []MountInfo `json:"mounted_children,omitempty"`
	Enabled            bool        `json:"enabled"`
	RegisteredAt       time.Time   `json:"registered_at"`
}

type registryEntry struct {
	meta    Metadata
	handler *route.Handler
}

// Registry is the catalog of registered plugins. It keeps first-seen load
// order; re-registering a name overwrites its record in place.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	order   []string

	// Now stamps RegisteredAt. Default: time.Now.
	Now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register records h and returns its metadata.
func (r *Registry) Register(h *route.Handler) (Metadata, error) {
	if h == nil {
		return Metadata{}, fmt.Errorf("plugin registry: cannot register a nil handler")
	}
	if h.Name() == "" {
		return Metadata{}, fmt.Errorf("plugin registry: handler name cannot be empty")
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	meta := describe(h)
	meta.RegisteredAt = now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[meta.Name]; !exists {
		r.order = append(r.order, meta.Name)
	}
	r.entries[meta.Name] = &registryEntry{meta: meta, handler: h}
	return meta, nil
}

func describe(h *route.Handler) Metadata {
	meta := Metadata{
		Name:               h.Name(),
		Version:            h.Version(),
		VersionRequirement: h.VersionRequirement(),
		Priority:           h.Priority(),
		RoutePattern:       h.Pattern(),
		Methods:            h.Methods(),
	}
	for _, m := range h.Mounts() {
		meta.Mounts = append(meta.Mounts, MountInfo{Prefix: m.Prefix, Child: m.Child.Name()})
	}
	return meta
}

// Unregister removes a plugin. It reports whether the name was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

// Find returns the metadata for name.
func (r *Registry) Find(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Metadata{}, false
	}
	return e.withEnabled(), true
}

// Handler returns the registered handler for name.
func (r *Registry) Handler(name string) (*route.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// IsRegistered reports whether name is registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// All returns every record in load order.
func (r *Registry) All() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].withEnabled())
	}
	return out
}

// ByPriority returns every record sorted by descending priority. Equal
// priorities keep load order.
func (r *Registry) ByPriority() []Metadata {
	all := r.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Priority > all[j].Priority
	})
	return all
}

// Enabled returns the records whose handler toggle is on, in load order.
func (r *Registry) Enabled() []Metadata {
	return r.partition(true)
}

// Disabled returns the records whose handler toggle is off, in load order.
func (r *Registry) Disabled() []Metadata {
	return r.partition(false)
}

func (r *Registry) partition(enabled bool) []Metadata {
	var out []Metadata
	for _, m := range r.All() {
		if m.Enabled == enabled {
			out = append(out, m)
		}
	}
	return out
}

// Clear removes every record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*registryEntry)
	r.order = nil
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (e *registryEntry) withEnabled() Metadata {
	m := e.meta
	m.Methods = slices.Clone(m.Methods)
	m.Mounts = slices.Clone(m.Mounts)
	m.Enabled = e.handler.Enabled()
	return m
}
