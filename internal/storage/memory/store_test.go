package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

func TestMemoryStore_RecordEvent(t *testing.T) {
	store := New(0)

	event := &domain.PluginEvent{Type: domain.PluginEventRegistered, Plugin: "greeter"}
	if err := store.RecordEvent(context.Background(), event); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if event.ID == "" || event.Timestamp.IsZero() {
		t.Errorf("ID and Timestamp should be assigned, got %+v", event)
	}

	events, err := store.ListEvents(context.Background(), ports.EventListOptions{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].ID != event.ID {
		t.Fatalf("ListEvents() = %+v", events)
	}

	events[0].Plugin = "mutated"
	again, _ := store.ListEvents(context.Background(), ports.EventListOptions{})
	if again[0].Plugin != "greeter" {
		t.Error("listing must return copies")
	}
}

func TestMemoryStore_ListEvents_Filters(t *testing.T) {
	store := New(0)
	ctx := context.Background()
	for i := range 5 {
		typ := domain.PluginEventRegistered
		if i%2 == 1 {
			typ = domain.PluginEventSkipped
		}
		_ = store.RecordEvent(ctx, &domain.PluginEvent{Type: typ, Plugin: fmt.Sprintf("p%d", i%3)})
	}

	tests := []struct {
		name string
		opts ports.EventListOptions
		want []string
	}{
		{"all newest first", ports.EventListOptions{}, []string{"p1", "p0", "p2", "p1", "p0"}},
		{"by plugin", ports.EventListOptions{Plugin: "p1"}, []string{"p1", "p1"}},
		{"by type", ports.EventListOptions{Type: domain.PluginEventSkipped}, []string{"p0", "p1"}},
		{"limit", ports.EventListOptions{Limit: 2}, []string{"p1", "p0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.ListEvents(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, e := range events {
				got = append(got, e.Plugin)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryStore_Bounded(t *testing.T) {
	store := New(3)
	for i := range 10 {
		_ = store.RecordEvent(context.Background(), &domain.PluginEvent{Type: domain.PluginEventRegistered, Plugin: fmt.Sprint(i)})
	}
	events, _ := store.ListEvents(context.Background(), ports.EventListOptions{})
	if len(events) != 3 || events[0].Plugin != "9" || events[2].Plugin != "7" {
		t.Errorf("unexpected retained events %+v", events)
	}
}
