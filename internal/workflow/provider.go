// ABOUTME: SQLite-backed context provider for one workflow instance
// ABOUTME: Owns the Channel log, per-agent read cursors, and shared Documents

package workflow

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// ErrDocumentNotFound is returned when reading a document that was never written.
var ErrDocumentNotFound = errors.New("document not found")

// Provider mediates all Channel/Inbox/Document access for one workflow:tag
// instance. All mutation for an instance funnels through one Provider, which
// is what keeps the file-backed state race-free without locking.
type Provider struct {
	db       *sql.DB
	workflow string
	tag      string
	logger   *slog.Logger
}

// Open creates (or reopens) the store for a workflow instance at
// <dataDir>/workflows/<workflow>/<tag>.db.
func Open(dataDir, workflow, tag string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(dataDir, "workflows", workflow)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workflow directory: %w", err)
	}

	path := filepath.Join(dir, tag+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening workflow store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	p := &Provider{
		db:       db,
		workflow: workflow,
		tag:      tag,
		logger:   logger.With("component", "workflow", "instance", workflow+":"+tag),
	}
	if err := p.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	p.logger.Info("workflow store opened", "path", path)
	return p, nil
}

// Instance returns the workflow:tag this provider serves.
func (p *Provider) Instance() string {
	return p.workflow + ":" + p.tag
}

// Close releases the underlying database.
func (p *Provider) Close() error {
	return p.db.Close()
}

func (p *Provider) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS channel_entries (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			mentions TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_channel_ts ON channel_entries(ts);

		CREATE TABLE IF NOT EXISTS read_cursors (
			agent TEXT PRIMARY KEY,
			last_ack INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS documents (
			name TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			name TEXT PRIMARY KEY,
			registered_at INTEGER NOT NULL
		);
	`
	_, err := p.db.Exec(schema)
	return err
}

// RegisterAgent adds an agent name to this instance's valid-mention set.
// Registration is idempotent.
func (p *Provider) RegisterAgent(name string) error {
	_, err := p.db.Exec(
		`INSERT INTO agents (name, registered_at) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("registering agent: %w", err)
	}
	return nil
}

// Agents returns the registered agent names, sorted.
func (p *Provider) Agents() ([]string, error) {
	rows, err := p.db.Query(`SELECT name FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// agentSet returns the valid-mention set as a map.
func (p *Provider) agentSet() (map[string]bool, error) {
	names, err := p.Agents()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}
