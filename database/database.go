package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

// PlaylistRecord is one playlist this service created.
type PlaylistRecord struct {
	ID         int64
	OwnerID    string
	PlaylistID string
	Name       string
	URL        string
	TrackCount int
	Mode       string
	CreatedAt  time.Time
}

// New opens (creating if needed) the sqlite database at dbPath.
func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS playlist_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			playlist_id TEXT NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			track_count INTEGER NOT NULL DEFAULT 0,
			mode TEXT NOT NULL DEFAULT 'user',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_history_owner ON playlist_history(owner_id, created_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// RecordPlaylist stores a created playlist.
func (d *Database) RecordPlaylist(ctx context.Context, r PlaylistRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO playlist_history (owner_id, playlist_id, name, url, track_count, mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.OwnerID, r.PlaylistID, r.Name, r.URL, r.TrackCount, r.Mode, createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record playlist: %w", err)
	}
	return nil
}

// GetPlaylists returns an owner's playlists, newest first.
func (d *Database) GetPlaylists(ctx context.Context, ownerID string, limit int) ([]PlaylistRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, owner_id, playlist_id, name, url, track_count, mode, created_at
		 FROM playlist_history
		 WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	records := []PlaylistRecord{}
	for rows.Next() {
		var r PlaylistRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.PlaylistID, &r.Name, &r.URL, &r.TrackCount, &r.Mode, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist row: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
