package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one rescan.
const DefaultDebounce = 250 * time.Millisecond

// Watcher rescans plugin directories when plugin files change.
type Watcher struct {
	Discovery *Discovery
	Debounce  time.Duration
	Logger    *slog.Logger

	// OnRescan, if set, is called after every rescan.
	OnRescan func(registered int, err error)
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Watch starts watching the discovery directories. It returns once the
// watch is set up; events are processed until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.Discovery.Dirs {
		if err := watcher.Add(dir); err != nil {
			w.logger().Warn("cannot watch plugin directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return fmt.Errorf("no plugin directories could be watched")
	}

	w.logger().Info("watching plugin directories", slog.Any("dirs", w.Discovery.Dirs))

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				w.logger().Debug("plugin watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !w.relevant(event) {
					continue
				}
				w.logger().Debug("plugin file changed",
					slog.String("path", event.Name),
					slog.String("op", event.Op.String()))
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				registered, err := w.Discovery.ScanAndRegister(ctx)
				if err != nil {
					w.logger().Error("plugin rescan failed", slog.String("error", err.Error()))
				} else {
					w.logger().Info("plugin rescan complete", slog.Int("registered", len(registered)))
				}
				if w.OnRescan != nil {
					w.OnRescan(len(registered), err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger().Error("plugin watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	ok, err := filepath.Match(w.Discovery.pattern(), filepath.Base(event.Name))
	return err == nil && ok
}
