package plugin

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestWatcher_Relevant(t *testing.T) {
	w := &Watcher{Discovery: &Discovery{}}

	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/p/a_plugin.yaml", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/p/a_plugin.yaml", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/p/a_plugin.yaml", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "/p/a_plugin.yaml", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "/p/a_plugin.yaml", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/p/notes.yaml", Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.relevant(tt.event), "%s %s", tt.event.Op, tt.event.Name)
	}
}
