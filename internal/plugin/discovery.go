package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/route"
)

// DefaultPattern is the plugin file naming convention.
const DefaultPattern = "*_plugin.yaml"

// Discovery finds plugin files, loads them and registers what they define.
type Discovery struct {
	// Dirs are the source directories, scanned in order.
	Dirs []string
	// Pattern is the file glob. Default: DefaultPattern.
	Pattern string

	Loader   ports.Loader
	Catalog  *Catalog
	Checker  *VersionChecker
	Registry *Registry
	// Handlers is the active handler list survivors are appended to.
	Handlers *route.List
	// Events receives the lifecycle journal. Optional.
	Events ports.EventStore
	Logger *slog.Logger

	mu sync.Mutex
}

func (d *Discovery) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// record journals an event. Journal failures are logged, never returned.
func (d *Discovery) record(ctx context.Context, event domain.PluginEvent) {
	if d.Events == nil {
		return
	}
	if err := d.Events.RecordEvent(ctx, &event); err != nil {
		d.logger().Warn("failed to record plugin event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

func (d *Discovery) pattern() string {
	if d.Pattern != "" {
		return d.Pattern
	}
	return DefaultPattern
}

// Files lists the plugin files in every source directory, sorted per
// directory.
func (d *Discovery) Files() ([]string, error) {
	var files []string
	for _, dir := range d.Dirs {
		matches, err := filepath.Glob(filepath.Join(dir, d.pattern()))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

// Discover loads every plugin file and returns the handlers that became
// defined as a result and carry a route pattern. A file that fails to load
// is logged and skipped.
func (d *Discovery) Discover(ctx context.Context) ([]*route.Handler, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}

	mark := d.Catalog.Mark()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.Loader.Load(ctx, path); err != nil {
			d.logger().Error("failed to load plugin file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			d.record(ctx, domain.PluginEvent{Type: domain.PluginEventLoadFailed, Path: path, Message: err.Error()})
			continue
		}
	}

	var found []*route.Handler
	for _, h := range d.Catalog.Since(mark) {
		if h.Pattern() == "" {
			continue
		}
		found = append(found, h)
	}
	return found, nil
}

// ScanAndRegister discovers plugins, drops those the version checker
// rejects, sorts the rest by descending priority and registers them. In
// strict mode an incompatible plugin aborts the whole scan and nothing is
// registered.
func (d *Discovery) ScanAndRegister(ctx context.Context) ([]*route.Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	found, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}

	survivors := make([]*route.Handler, 0, len(found))
	for _, h := range found {
		if d.Checker != nil {
			ok, err := d.Checker.Check(h)
			if err != nil {
				d.record(ctx, skipped(h, err.Error()))
				return nil, err
			}
			if !ok {
				d.record(ctx, skipped(h, d.Checker.incompatibility(h).Error()))
				continue
			}
		}
		survivors = append(survivors, h)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Priority() > survivors[j].Priority()
	})

	for _, h := range survivors {
		if d.Handlers != nil && !d.Handlers.Append(h) {
			d.Handlers.Replace(h)
		}
		if d.Registry != nil {
			if _, err := d.Registry.Register(h); err != nil {
				return nil, err
			}
		}
		d.record(ctx, domain.PluginEvent{Type: domain.PluginEventRegistered, Plugin: h.Name(), Version: h.Version()})
		d.logger().Info("plugin registered",
			slog.String("plugin", h.Name()),
			slog.String("pattern", h.Pattern()),
			slog.Int("priority", h.Priority()))
	}
	return survivors, nil
}

func skipped(h *route.Handler, reason string) domain.PluginEvent {
	return domain.PluginEvent{Type: domain.PluginEventSkipped, Plugin: h.Name(), Version: h.Version(), Message: reason}
}
