package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/stageline/internal/auth"
	"github.com/tjfontaine/stageline/internal/env"
	"github.com/tjfontaine/stageline/internal/pkg/config"
)

const greeterManifest = `
name: greeter
pattern: /greet/{name}
methods: [GET]
priority: 10
version: 1.0.0
stages:
  authenticate: {use: noop}
  authorize: {use: noop}
  action:
    use: echo
    with:
      message: hello
`

const futureManifest = `
name: future
pattern: /future
version_requirement: ">= 9.0.0"
stages:
  authenticate: {use: noop}
  action: {use: echo}
`

func testConfig(t *testing.T, manifests map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range manifests {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return &config.Config{
		Server:  config.ServerConfig{Port: 0, Timeout: 5 * time.Second},
		Plugins: config.PluginsConfig{Dirs: []string{dir}, Pattern: "*_plugin.yaml", VersionCheck: "warn"},
		Admin:   config.AdminConfig{Enabled: true},
	}
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEnv(env.FromMap(nil)),
		WithHostVersion("1.2.0"),
	}
	e, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration required")
}

func TestNew_RejectsBadVersionMode(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Plugins.VersionCheck = "sometimes"
	_, err := New(WithConfig(cfg), WithEnv(env.FromMap(nil)))
	assert.Error(t, err)
}

func TestEngine_ServesPlugins(t *testing.T) {
	e := newEngine(t, testConfig(t, map[string]string{
		"greeter_plugin.yaml": greeterManifest,
		"future_plugin.yaml":  futureManifest,
	}))

	registered, err := e.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, registered, 1, "the incompatible plugin is skipped in warn mode")
	assert.Equal(t, "greeter", registered[0].Name())

	h := e.Handler()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(t, h, "/greet/ada")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hello", body["message"])
	assert.Equal(t, map[string]any{"name": "ada"}, body["params"])

	rec = get(t, h, "/future")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Route not found")

	rec = get(t, h, "/admin/plugins")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"greeter"`)

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stageline_stage_calls_total{outcome="success",stage="action"} 1`)
	assert.Contains(t, rec.Body.String(), "stageline_plugins_registered 1")
}

func TestEngine_PluginToggle(t *testing.T) {
	e := newEngine(t, testConfig(t, map[string]string{"greeter_plugin.yaml": greeterManifest}),
		WithEnv(env.FromMap(map[string]any{"plugins.greeter.enabled": "false"})))
	_, err := e.Load(context.Background())
	require.NoError(t, err)

	rec := get(t, e.Handler(), "/greet/ada")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEngine_AdminRequiresKey(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Auth.APIKeys = []config.APIKeyConfig{{KeyHash: auth.HashAPIKey("sk-admin"), UserID: "ops"}}
	e := newEngine(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, get(t, e.Handler(), "/admin/plugins").Code)
	assert.Equal(t, http.StatusOK, get(t, e.Handler(), "/admin/plugins", "Authorization", "Bearer sk-admin").Code)
}

func TestEngine_Delegate(t *testing.T) {
	manifest := `
name: legacy
pattern: /legacy/*
delegate:
  target: old
  action: /v0/list
`
	e := newEngine(t, testConfig(t, map[string]string{"legacy_plugin.yaml": manifest}),
		WithDelegateHandler("old", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("old:" + r.URL.Path))
		})))
	_, err := e.Load(context.Background())
	require.NoError(t, err)

	rec := get(t, e.Handler(), "/legacy/things")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old:/v0/list", rec.Body.String())
}

func TestEngine_StartAndShutdown(t *testing.T) {
	e := newEngine(t, testConfig(t, map[string]string{"greeter_plugin.yaml": greeterManifest}))

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, 1, e.Registry().Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
}

func TestEngine_AdminDisabled(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Admin.Enabled = false
	e := newEngine(t, cfg)

	rec := get(t, e.Handler(), "/admin/plugins")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Route not found"), "falls through to the router")
}

func TestEngine_EventJournal(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"greeter_plugin.yaml": greeterManifest,
		"future_plugin.yaml":  futureManifest,
	})
	cfg.Storage = config.StorageConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "events.db")}
	e := newEngine(t, cfg)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	_, err := e.Load(context.Background())
	require.NoError(t, err)

	rec := get(t, e.Handler(), "/admin/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))

	seen := map[string]string{}
	for _, ev := range events {
		seen[ev["plugin"].(string)] = ev["type"].(string)
	}
	assert.Equal(t, map[string]string{"greeter": "plugin.registered", "future": "plugin.skipped"}, seen)
}
