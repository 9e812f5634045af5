// Package sqlite provides a SQLite-backed session archive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT    PRIMARY KEY,
	vignette_id   TEXT    NOT NULL,
	user_id       TEXT    NOT NULL DEFAULT '',
	current_phase TEXT    NOT NULL,
	mood          REAL    NOT NULL DEFAULT 0,
	ended         INTEGER NOT NULL DEFAULT 0,
	state         TEXT    NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_vignette ON sessions(vignette_id);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`

// Store implements ports.StateStore on a single SQLite file. Summary columns
// sit next to the JSON snapshot so transcripts can be queried for review.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Summary is the queryable part of a stored session.
type Summary struct {
	SessionID    string
	VignetteID   string
	UserID       string
	CurrentPhase string
	Mood         float64
	Ended        bool
	UpdatedAt    time.Time
}

// Open opens (or creates) the database and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(cleanPath), err)
	}

	db, err := sql.Open("sqlite", cleanPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the snapshot.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.SessionState) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, vignette_id, user_id, current_phase, mood, ended, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vignette_id = excluded.vignette_id,
			user_id = excluded.user_id,
			current_phase = excluded.current_phase,
			mood = excluded.mood,
			ended = excluded.ended,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		sessionID, state.VignetteID, state.UserID, state.CurrentPhase.CurrentPhaseID,
		state.EmotionalState.Value, state.Ended, string(data), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// Load retrieves the snapshot.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// List returns session ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByVignette returns the summaries of every session run against a vignette.
func (s *Store) ListByVignette(ctx context.Context, vignetteID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vignette_id, user_id, current_phase, mood, ended, updated_at
		FROM sessions WHERE vignette_id = ? ORDER BY updated_at DESC, id`, vignetteID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", vignetteID, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			updated int64
		)
		if err := rows.Scan(&sum.SessionID, &sum.VignetteID, &sum.UserID, &sum.CurrentPhase, &sum.Mood, &sum.Ended, &updated); err != nil {
			return nil, err
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
