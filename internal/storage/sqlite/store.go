// Package sqlite persists the plugin event journal in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

const defaultListLimit = 100

// Store is a SQLite implementation of EventStore.
type Store struct {
	db *sql.DB
}

var _ ports.EventStore = (*Store)(nil)

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS plugin_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			plugin TEXT,
			version TEXT,
			path TEXT,
			message TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plugin_events_plugin ON plugin_events(plugin)`,
		`CREATE INDEX IF NOT EXISTS idx_plugin_events_type ON plugin_events(type)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordEvent(ctx context.Context, event *domain.PluginEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `INSERT INTO plugin_events (id, type, plugin, version, path, message, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.Type), event.Plugin, event.Version, event.Path, event.Message, event.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts ports.EventListOptions) ([]*domain.PluginEvent, error) {
	var (
		where []string
		args  []any
	)
	if opts.Plugin != "" {
		where = append(where, "plugin = ?")
		args = append(args, opts.Plugin)
	}
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(opts.Type))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, type, plugin, version, path, message, created_at FROM plugin_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.PluginEvent
	for rows.Next() {
		var (
			e                              domain.PluginEvent
			typ                            string
			plugin, version, path, message sql.NullString
		)
		if err := rows.Scan(&e.ID, &typ, &plugin, &version, &path, &message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = domain.PluginEventType(typ)
		e.Plugin, e.Version, e.Path, e.Message = plugin.String, version.String, path.String, message.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
