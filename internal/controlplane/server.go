// Package controlplane serves the admin JSON API: runtime stats and the
// plugin registry, with removal and rescan of plugins at runtime.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
	"github.com/tjfontaine/stageline/internal/plugin"
	"github.com/tjfontaine/stageline/internal/route"
)

// Scanner re-runs plugin discovery.
type Scanner interface {
	ScanAndRegister(ctx context.Context) ([]*route.Handler, error)
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	logger    *slog.Logger

	registry *plugin.Registry
	handlers *route.List
	scanner  Scanner
	events   ports.EventStore
}

// NewServer creates the admin API. handlers, scanner and events may be nil;
// the endpoints that need them then answer 501.
func NewServer(registry *plugin.Registry, handlers *route.List, scanner Scanner, events ports.EventStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		logger:    logger,
		registry:  registry,
		handlers:  handlers,
		scanner:   scanner,
		events:    events,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/events", s.handleEvents)

	s.router.Route("/plugins", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/priority", s.handleByPriority)
		r.Post("/rescan", s.handleRescan)
		r.Get("/{name}", s.handleGet)
		r.Delete("/{name}", s.handleDelete)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
	Plugins      PluginStats `json:"plugins"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

type PluginStats struct {
	Registered int `json:"registered"`
	Enabled    int `json:"enabled"`
	Active     int `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type deleteResponse struct {
	Removed      string   `json:"removed"`
	MountedUnder []string `json:"mounted_under"`
}

type rescanResponse struct {
	Registered []string `json:"registered"`
	Total      int      `json:"total"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		Plugins: PluginStats{
			Registered: s.registry.Count(),
			Enabled:    len(s.registry.Enabled()),
		},
	}
	if s.handlers != nil {
		stats.Plugins.Active = s.handlers.Len()
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) handleByPriority(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ByPriority())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	meta, ok := s.registry.Find(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "plugin not found: " + name})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleDelete unregisters a plugin and removes it from the top-level
// handler list. Parents that mount it keep serving it under their prefix;
// those parents are listed in a 200 response instead of the plain 204.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.registry.Unregister(name) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "plugin not found: " + name})
		return
	}

	var parents []string
	if s.handlers != nil {
		s.handlers.Remove(name)
		parents = mountedUnder(s.handlers, name)
	}

	message := "removed via admin API"
	if len(parents) > 0 {
		message = fmt.Sprintf("removed via admin API; still mounted under %s", strings.Join(parents, ", "))
	}
	if s.events != nil {
		event := &domain.PluginEvent{Type: domain.PluginEventUnregistered, Plugin: name, Message: message}
		if err := s.events.RecordEvent(r.Context(), event); err != nil {
			s.logger.Warn("failed to record plugin event", slog.String("error", err.Error()))
		}
	}

	if len(parents) > 0 {
		s.logger.Warn("plugin removed but still mounted",
			slog.String("plugin", name),
			slog.Any("parents", parents))
		writeJSON(w, http.StatusOK, deleteResponse{Removed: name, MountedUnder: parents})
		return
	}
	s.logger.Info("plugin removed", slog.String("plugin", name))
	w.WriteHeader(http.StatusNoContent)
}

// mountedUnder names the configured handlers that mount child directly.
func mountedUnder(handlers *route.List, child string) []string {
	var parents []string
	for _, h := range handlers.Snapshot() {
		for _, m := range h.Mounts() {
			if m.Child.Name() == child {
				parents = append(parents, h.Name())
				break
			}
		}
	}
	return parents
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "plugin discovery is not configured"})
		return
	}
	registered, err := s.scanner.ScanAndRegister(r.Context())
	if err != nil {
		s.logger.Error("plugin rescan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	resp := rescanResponse{Registered: make([]string, 0, len(registered)), Total: s.registry.Count()}
	for _, h := range registered {
		resp.Registered = append(resp.Registered, h.Name())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents lists the plugin lifecycle journal, newest first. Query
// parameters plugin, type and limit filter it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "event journal is not configured"})
		return
	}
	q := r.URL.Query()
	opts := ports.EventListOptions{
		Plugin: q.Get("plugin"),
		Type:   domain.PluginEventType(q.Get("type")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		opts.Limit = limit
	}

	events, err := s.events.ListEvents(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to list plugin events", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list events"})
		return
	}
	if events == nil {
		events = []*domain.PluginEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
