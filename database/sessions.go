package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"setlistify/auth"
)

// SessionStore keeps one session's token pair server-side, keyed by an
// opaque session id. It implements auth.SessionStore.
type SessionStore struct {
	db *sql.DB
	id string
}

func (d *Database) Sessions(sessionID string) *SessionStore {
	return &SessionStore{db: d.db, id: sessionID}
}

// HasSession reports whether a session row exists for id.
func (d *Database) HasSession(ctx context.Context, id string) bool {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	return err == nil
}

func (s *SessionStore) Load(ctx context.Context) (*auth.TokenPair, error) {
	var pair auth.TokenPair
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at FROM sessions WHERE id = ?`,
		s.id,
	).Scan(&pair.AccessToken, &pair.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if expiresAt > 0 {
		pair.ExpiresAt = time.UnixMilli(expiresAt)
	}
	return &pair, nil
}

// Save upserts the pair. An empty refresh token keeps the stored one.
func (s *SessionStore) Save(ctx context.Context, pair auth.TokenPair) error {
	var expiresAt int64
	if !pair.ExpiresAt.IsZero() {
		expiresAt = pair.ExpiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, access_token, refresh_token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN sessions.refresh_token ELSE excluded.refresh_token END,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.id, pair.AccessToken, pair.RefreshToken, expiresAt, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, s.id); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// PurgeSessions deletes sessions untouched since before cutoff.
func (d *Database) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}
