// Package db caches chronomap snapshots in DuckDB so a restarted server can
// serve content before Baserow answers.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/chronomaps/internal/content"
)

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
}

// Store is a DuckDB-backed content.SnapshotStore.
type Store struct {
	db *sql.DB
}

var _ content.SnapshotStore = (*Store)(nil)

// SnapshotInfo summarises a cached snapshot.
type SnapshotInfo struct {
	Slug      string    `json:"slug"`
	FetchedAt time.Time `json:"fetched_at"`
	Items     int       `json:"items"`
}

const schema = `CREATE TABLE IF NOT EXISTS content_snapshots (
	slug       VARCHAR PRIMARY KEY,
	fetched_at TIMESTAMP,
	items      INTEGER,
	payload    VARCHAR
)`

// Open opens (or creates) the snapshot database.
func Open(cfg Config) (*Store, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "chronomaps"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the cached snapshot for slug.
func (s *Store) SaveSnapshot(ctx context.Context, slug string, snap content.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO content_snapshots (slug, fetched_at, items, payload) VALUES (?, ?, ?, ?)`,
		slug, snap.FetchedAt.UTC(), len(snap.Items), string(payload))
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", slug, err)
	}
	return nil
}

// LoadSnapshot returns the cached snapshot for slug.
func (s *Store) LoadSnapshot(ctx context.Context, slug string) (content.Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM content_snapshots WHERE slug = ?`, slug).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Snapshot{}, false, nil
	}
	if err != nil {
		return content.Snapshot{}, false, fmt.Errorf("load snapshot %q: %w", slug, err)
	}

	var snap content.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return content.Snapshot{}, false, fmt.Errorf("decode snapshot %q: %w", slug, err)
	}
	return snap, true, nil
}

// DeleteSnapshot drops the cached snapshot for slug.
func (s *Store) DeleteSnapshot(ctx context.Context, slug string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_snapshots WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", slug, err)
	}
	return nil
}

// ListSnapshots lists cached snapshots ordered by slug.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, fetched_at, items FROM content_snapshots ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []SnapshotInfo{}
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.Slug, &info.FetchedAt, &info.Items); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
