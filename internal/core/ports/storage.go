package ports

import (
	"context"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// EventListOptions filters a journal listing. Zero values match everything.
type EventListOptions struct {
	Plugin string
	Type   domain.PluginEventType
	// Limit caps the result size. Zero means the store default.
	Limit int
}

// EventStore persists the plugin lifecycle journal. Listings are newest
// first.
type EventStore interface {
	RecordEvent(ctx context.Context, event *domain.PluginEvent) error
	ListEvents(ctx context.Context, opts EventListOptions) ([]*domain.PluginEvent, error)
	Close() error
}
