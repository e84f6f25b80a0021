package plugin

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/route"
)

// Params are the free-form settings a manifest passes to a factory.
type Params map[string]any

// String returns key as a string, or def when unset.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns key as an int, or def when unset or not numeric.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns key as a bool, or def when unset or not boolean.
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Strings returns key as a string list.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// StageBuilder turns manifest params into a per-request stage factory.
type StageBuilder func(params Params) (route.StageFactory, error)

// HookBuilder turns manifest params into a wrapper hook.
type HookBuilder func(params Params) (pipeline.Hook, error)

// BranchBuilder turns manifest params into a branching function for
// conditional pipelines.
type BranchBuilder func(params Params) (pipeline.NextStageFunc, error)

// Factories maps the names manifests use to stage, hook and branch
// constructors.
type Factories struct {
	mu       sync.RWMutex
	stages   map[pipeline.StageName]map[string]StageBuilder
	hooks    map[string]HookBuilder
	branches map[string]BranchBuilder
}

// NewFactories creates an empty factory set.
func NewFactories() *Factories {
	return &Factories{
		stages:   make(map[pipeline.StageName]map[string]StageBuilder),
		hooks:    make(map[string]HookBuilder),
		branches: make(map[string]BranchBuilder),
	}
}

// RegisterStage registers a builder for one pipeline slot.
// Panics if the slot is unknown, the name is empty or already registered.
func (f *Factories) RegisterStage(slot pipeline.StageName, name string, b StageBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !slot.Valid() {
		panic(fmt.Sprintf("stage factory %q: unknown slot %q", name, slot))
	}
	if name == "" {
		panic("stage factory name cannot be empty")
	}
	if b == nil {
		panic(fmt.Sprintf("stage factory %s/%s must have a builder", slot, name))
	}
	if _, exists := f.stages[slot][name]; exists {
		panic(fmt.Sprintf("stage factory %s/%s already registered", slot, name))
	}
	if f.stages[slot] == nil {
		f.stages[slot] = make(map[string]StageBuilder)
	}
	f.stages[slot][name] = b
}

// RegisterHook registers a wrapper hook builder.
// Panics if the name is empty or already registered.
func (f *Factories) RegisterHook(name string, b HookBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "" {
		panic("hook factory name cannot be empty")
	}
	if b == nil {
		panic(fmt.Sprintf("hook factory %q must have a builder", name))
	}
	if _, exists := f.hooks[name]; exists {
		panic(fmt.Sprintf("hook factory %q already registered", name))
	}
	f.hooks[name] = b
}

// RegisterBranch registers a branching function builder.
// Panics if the name is empty or already registered.
func (f *Factories) RegisterBranch(name string, b BranchBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "" {
		panic("branch factory name cannot be empty")
	}
	if b == nil {
		panic(fmt.Sprintf("branch factory %q must have a builder", name))
	}
	if _, exists := f.branches[name]; exists {
		panic(fmt.Sprintf("branch factory %q already registered", name))
	}
	f.branches[name] = b
}

// IsStageRegistered reports whether slot/name is registered.
func (f *Factories) IsStageRegistered(slot pipeline.StageName, name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.stages[slot][name]
	return ok
}

// Stage builds the named stage factory for slot.
func (f *Factories) Stage(slot pipeline.StageName, name string, params Params) (route.StageFactory, error) {
	f.mu.RLock()
	b, ok := f.stages[slot][name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown %s stage %q (registered: %v)", slot, name, f.StageNames(slot))
	}
	return b(params)
}

// Hook builds the named hook.
func (f *Factories) Hook(name string, params Params) (pipeline.Hook, error) {
	f.mu.RLock()
	b, ok := f.hooks[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown hook %q (registered: %v)", name, f.HookNames())
	}
	return b(params)
}

// Branch builds the named branching function.
func (f *Factories) Branch(name string, params Params) (pipeline.NextStageFunc, error) {
	f.mu.RLock()
	b, ok := f.branches[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown branch %q (registered: %v)", name, f.BranchNames())
	}
	return b(params)
}

// StageNames lists the builders registered for slot, sorted.
func (f *Factories) StageNames(slot pipeline.StageName) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.stages[slot]))
	for n := range f.stages[slot] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HookNames lists the registered hook builders, sorted.
func (f *Factories) HookNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.hooks))
	for n := range f.hooks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BranchNames lists the registered branch builders, sorted.
func (f *Factories) BranchNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.branches))
	for n := range f.branches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clear removes every builder (for testing only).
func (f *Factories) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = make(map[pipeline.StageName]map[string]StageBuilder)
	f.hooks = make(map[string]HookBuilder)
	f.branches = make(map[string]BranchBuilder)
}
