package domain

import "time"

// PluginEventType identifies a plugin lifecycle transition.
type PluginEventType string

const (
	PluginEventRegistered   PluginEventType = "plugin.registered"
	PluginEventSkipped      PluginEventType = "plugin.skipped"
	PluginEventLoadFailed   PluginEventType = "plugin.load_failed"
	PluginEventUnregistered PluginEventType = "plugin.unregistered"
)

// PluginEvent is one entry in the plugin lifecycle journal.
type PluginEvent struct {
	ID        string          `json:"id"`
	Type      PluginEventType `json:"type"`
	Plugin    string          `json:"plugin,omitempty"`
	Version   string          `json:"version,omitempty"`
	Path      string          `json:"path,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
