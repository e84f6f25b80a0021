// Package storage opens the plugin event journal backend named in the
// configuration.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/pkg/config"
	"github.com/tjfontaine/stageline/internal/storage/memory"
	"github.com/tjfontaine/stageline/internal/storage/sqlite"
)

// Open creates the configured event store.
func Open(cfg config.StorageConfig) (ports.EventStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.MaxEvents), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		if !strings.HasPrefix(cfg.Path, "file:") && cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
		return sqlite.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
