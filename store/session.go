// Package store persists workflow sessions, application attempts, and
// discovered jobs in SQLite. It is the durable half of cancellation:
// the cancel flag lives in the sessions row, so a session started in one
// process can be cancelled from another, and the request survives
// restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbultel/postule/idgen"
)

// Store wraps the postule database.
type Store struct {
	db  *sql.DB
	now func() time.Time // test hook
}

// New creates a Store over db. The schema must already be applied
// (dbopen.WithSchema(store.Schema)).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) millis() int64 { return s.now().UnixMilli() }

// CreateSession inserts a new active session and returns it.
func (s *Store) CreateSession(ctx context.Context, owner, sessionType string, totalItems int) (*Session, error) {
	now := s.millis()
	sess := &Session{
		ID:         idgen.Session(),
		Owner:      owner,
		Type:       sessionType,
		Status:     SessionActive,
		TotalItems: totalItems,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, owner, session_type, status, total_items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Owner, sess.Type, sess.Status, sess.TotalItems, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by id. Returns nil, nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, session_type, status, cancel_requested, processed_items,
		total_items, message, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var sess Session
	var cancel int
	err := row.Scan(&sess.ID, &sess.Owner, &sess.Type, &sess.Status, &cancel,
		&sess.ProcessedItems, &sess.TotalItems, &sess.Message, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.CancelRequested = cancel == 1
	return &sess, nil
}

// ListSessionsByOwner returns the owner's sessions, newest first.
func (s *Store) ListSessionsByOwner(ctx context.Context, owner string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, session_type, status, cancel_requested, processed_items,
		total_items, message, created_at, updated_at
		FROM sessions WHERE owner = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var cancel int
		if err := rows.Scan(&sess.ID, &sess.Owner, &sess.Type, &sess.Status, &cancel,
			&sess.ProcessedItems, &sess.TotalItems, &sess.Message, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.CancelRequested = cancel == 1
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// SetSessionStatus updates the status and optional message.
func (s *Store) SetSessionStatus(ctx context.Context, id, status, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		status, message, s.millis(), id)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return nil
}

// SetProgress updates the progress counters. Processed is clamped to
// total and never moves backwards.
func (s *Store) SetProgress(ctx context.Context, id string, processed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		SET processed_items = MIN(MAX(processed_items, ?), total_items), updated_at = ?
		WHERE id = ?`,
		processed, s.millis(), id)
	if err != nil {
		return fmt.Errorf("store: set progress: %w", err)
	}
	return nil
}

// SetTotalItems fixes the session's total once the work queue is built.
func (s *Store) SetTotalItems(ctx context.Context, id string, total int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET total_items = ?, updated_at = ? WHERE id = ?`,
		total, s.millis(), id)
	if err != nil {
		return fmt.Errorf("store: set totals: %w", err)
	}
	return nil
}

// RequestCancel persists the cancel flag. The running orchestrator picks
// it up at its next checkpoint; the flag itself never expires.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		s.millis(), id)
	if err != nil {
		return fmt.Errorf("store: request cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: request cancel: session %s: %w", id, ErrNotFound)
	}
	return nil
}

// IsCancelRequested reads the persisted cancel flag. Unknown sessions
// read as cancelled — a missing row must stop the loop, not keep it going.
func (s *Store) IsCancelRequested(ctx context.Context, id string) bool {
	var cancel int
	err := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM sessions WHERE id = ?`, id).Scan(&cancel)
	if err != nil {
		return true
	}
	return cancel == 1
}

// AppendLog adds one structured line to the session log.
func (s *Store) AppendLog(ctx context.Context, sessionID, level, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_logs (session_id, level, message, logged_at) VALUES (?, ?, ?, ?)`,
		sessionID, level, message, s.millis())
	if err != nil {
		return fmt.Errorf("store: append log: %w", err)
	}
	return nil
}

// ListLogs returns the session's log lines in append order.
func (s *Store) ListLogs(ctx context.Context, sessionID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, level, message, logged_at
		FROM session_logs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list logs: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Level, &e.Message, &e.LoggedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes terminal sessions (completed, stopped, error)
// older than age, cascading to their logs and attempts. Returns the
// number of sessions removed.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions
		WHERE status IN (?, ?, ?) AND updated_at < ?`,
		SessionCompleted, SessionStopped, SessionError, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purge: %w", err)
	}
	return res.RowsAffected()
}
