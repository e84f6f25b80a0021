// Package config loads the stageline application configuration from an
// optional YAML file overridden by STAGELINE_ environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment variable prefix. A double underscore maps to
// a key separator: STAGELINE_SERVER__PORT sets server.port.
const EnvPrefix = "STAGELINE_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Plugins   PluginsConfig   `koanf:"plugins"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Auth      AuthConfig      `koanf:"auth"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Admin     AdminConfig     `koanf:"admin"`
	Storage   StorageConfig   `koanf:"storage"`
}

type ServerConfig struct {
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type PluginsConfig struct {
	Dirs         []string `koanf:"dirs"`
	Pattern      string   `koanf:"pattern"`
	VersionCheck string   `koanf:"version_check"` // strict, warn, ignore
	HostVersion  string   `koanf:"host_version"`  // Optional: defaults to the build version
	Watch        bool     `koanf:"watch"`
}

type PipelineConfig struct {
	MaxStageInvocations int `koanf:"max_stage_invocations"` // 0 = 16 x stage count
}

type AuthConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	UserID      string `koanf:"user_id"`
	Description string `koanf:"description"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type AdminConfig struct {
	Enabled bool `koanf:"enabled"`
}

// StorageConfig selects where the plugin event journal is kept.
type StorageConfig struct {
	Type      string `koanf:"type"` // memory, sqlite
	Path      string `koanf:"path"`
	MaxEvents int    `koanf:"max_events"` // memory only; 0 = unbounded
}

var defaults = map[string]any{
	"server.port":                    8080,
	"server.timeout":                 "30s",
	"log.level":                      "info",
	"plugins.dirs":                   []string{"plugins"},
	"plugins.pattern":                "*_plugin.yaml",
	"plugins.version_check":          "warn",
	"plugins.watch":                  false,
	"pipeline.max_stage_invocations": 0,
	"telemetry.enabled":              false,
	"admin.enabled":                  true,
	"storage.type":                   "memory",
	"storage.path":                   "./data/stageline.db",
	"storage.max_events":             1000,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty) and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	// Durations and comma-separated lists are decoded by koanf's default hooks
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Plugins.Dirs {
		cfg.Plugins.Dirs[i] = substituteEnvVars(cfg.Plugins.Dirs[i])
	}
	for i := range cfg.Auth.APIKeys {
		cfg.Auth.APIKeys[i].KeyHash = substituteEnvVars(cfg.Auth.APIKeys[i].KeyHash)
	}
	cfg.Storage.Path = substituteEnvVars(cfg.Storage.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values koanf cannot type-check.
func (c *Config) Validate() error {
	switch c.Plugins.VersionCheck {
	case "strict", "warn", "ignore":
	default:
		return fmt.Errorf("plugins.version_check: unknown mode %q (want strict, warn or ignore)", c.Plugins.VersionCheck)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Pipeline.MaxStageInvocations < 0 {
		return fmt.Errorf("pipeline.max_stage_invocations: must not be negative")
	}
	switch c.Storage.Type {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("storage.type: unsupported type %q (want memory or sqlite)", c.Storage.Type)
	}
	for i, k := range c.Auth.APIKeys {
		if k.KeyHash == "" {
			return fmt.Errorf("auth.api_keys[%d]: key_hash is required", i)
		}
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
