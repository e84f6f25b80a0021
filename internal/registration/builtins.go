// Package registration wires the built-in stage and hook factories into a
// plugin.Factories set. Registration is explicit: cmd/stageline and tests
// call RegisterBuiltins before loading any plugin manifest.
package registration

import (
	"time"

	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/plugin"
)

// Deps are the collaborators some built-ins need.
type Deps struct {
	// APIKeys verifies tokens for the api_key authenticator. When nil the
	// api_key authenticator refuses to build.
	APIKeys pipeline.Verifier
	// Now is the clock stamped into identities and permissions.
	Now func() time.Time
}

// RegisterBuiltins registers every built-in stage, hook and branch. Names
// already registered are left alone, so calling it twice is harmless.
func RegisterBuiltins(f *plugin.Factories, deps Deps) {
	RegisterStageBuiltins(f, deps)
	RegisterHookBuiltins(f)
	RegisterBranchBuiltins(f)
}

// RegisterStageBuiltins registers the built-in stages only.
func RegisterStageBuiltins(f *plugin.Factories, deps Deps) {
	stages := []struct {
		slot    pipeline.StageName
		name    string
		builder plugin.StageBuilder
	}{
		{pipeline.StageAuthenticate, "bearer", bearer(deps)},
		{pipeline.StageAuthenticate, "api_key", apiKey(deps)},
		{pipeline.StageAuthenticate, "noop", noop(pipeline.StageAuthenticate)},
		{pipeline.StageAuthorize, "allow_all", decider(pipeline.AllowAll, deps)},
		{pipeline.StageAuthorize, "deny_all", decider(pipeline.DenyAll, deps)},
		{pipeline.StageAuthorize, "webhook", webhook(deps)},
		{pipeline.StageAuthorize, "noop", noop(pipeline.StageAuthorize)},
		{pipeline.StageAction, "echo", echo},
		{pipeline.StageAction, "status", status},
		{pipeline.StageRender, "json", renderJSON},
	}
	for _, s := range stages {
		if f.IsStageRegistered(s.slot, s.name) {
			continue
		}
		f.RegisterStage(s.slot, s.name, s.builder)
	}
}

// RegisterHookBuiltins registers the built-in wrapper hooks only.
func RegisterHookBuiltins(f *plugin.Factories) {
	hooks := map[string]plugin.HookBuilder{
		"tag_request":    tagRequest,
		"require_header": requireHeader,
		"stamp_response": stampResponse,
	}
	registered := make(map[string]bool)
	for _, n := range f.HookNames() {
		registered[n] = true
	}
	for name, b := range hooks {
		if registered[name] {
			continue
		}
		f.RegisterHook(name, b)
	}
}

// RegisterBranchBuiltins registers the built-in branching functions only.
func RegisterBranchBuiltins(f *plugin.Factories) {
	registered := make(map[string]bool)
	for _, n := range f.BranchNames() {
		registered[n] = true
	}
	if !registered["skip_flagged"] {
		f.RegisterBranch("skip_flagged", skipFlagged)
	}
}
