// Package memory keeps the plugin event journal in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

const defaultListLimit = 100

// Store is an in-memory EventStore. It keeps at most max events, dropping
// the oldest first.
type Store struct {
	mu     sync.RWMutex
	events []*domain.PluginEvent
	max    int
}

var _ ports.EventStore = (*Store)(nil)

// New creates a store holding up to max events; max <= 0 means unbounded.
func New(max int) *Store {
	return &Store{max: max}
}

func (s *Store) RecordEvent(_ context.Context, event *domain.PluginEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	event.ID, event.Timestamp = cp.ID, cp.Timestamp

	s.events = append(s.events, &cp)
	if s.max > 0 && len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

func (s *Store) ListEvents(_ context.Context, opts ports.EventListOptions) ([]*domain.PluginEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var out []*domain.PluginEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[i]
		if opts.Plugin != "" && e.Plugin != opts.Plugin {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
