package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/route"
)

func TestHandlerDelegate(t *testing.T) {
	legacy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Path", r.URL.Path)
		w.Header().Set("X-Action", r.Header.Get("X-Stageline-Action"))
		w.WriteHeader(http.StatusAccepted)
	})
	d := &HandlerDelegate{Handler: legacy}
	req := domain.NewRequest("GET", "/old/orders", nil)

	tests := []struct {
		action, path, header string
	}{
		{"", "/old/orders", ""},
		{"/v2/orders", "/v2/orders", ""},
		{"index", "/old/orders", "index"},
	}
	for _, tt := range tests {
		out, err := d.Invoke(context.Background(), tt.action, req)
		if err != nil {
			t.Fatalf("Invoke(%q): %v", tt.action, err)
		}
		if out.Status != http.StatusAccepted || out.Headers.Get("X-Path") != tt.path || out.Headers.Get("X-Action") != tt.header {
			t.Errorf("Invoke(%q) = %d %v", tt.action, out.Status, out.Headers)
		}
	}
}

func TestDelegates_ThroughHandler(t *testing.T) {
	rt := &route.Runtime{Delegates: Delegates{
		"legacy": &HandlerDelegate{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("from legacy"))
		})},
	}}
	h := route.MustHandler(route.Definition{Pattern: "/old/*", Delegate: &route.Delegation{Target: "legacy"}}, rt)

	out, err := h.Call(context.Background(), domain.NewRequest("GET", "/old/x", nil))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(out.Body) != "from legacy" {
		t.Errorf("body = %q", out.Body)
	}
}

func TestHandlerDelegate_KeepsHeadersThroughPathView(t *testing.T) {
	var seen string
	d := &HandlerDelegate{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization") + " " + r.URL.Path
	})}

	h := make(http.Header)
	h.Set("Authorization", "Bearer t")
	req := domain.WithPath(domain.NewRequest("GET", "/api/v1/legacy", h), "/legacy")

	if _, err := d.Invoke(context.Background(), "", req); err != nil {
		t.Fatal(err)
	}
	if seen != "Bearer t /legacy" {
		t.Errorf("delegate saw %q", seen)
	}
}
