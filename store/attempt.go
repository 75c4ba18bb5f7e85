package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbultel/postule/dbopen"
	"github.com/mbultel/postule/idgen"
)

// ErrDuplicateAttempt rejects a second attempt for the same (session,
// job) pair.
var ErrDuplicateAttempt = errors.New("store: attempt already exists for job")

// CreateAttempt opens a new attempt row for (session, job). The
// duplicate check and the insert run in one transaction, so two engines
// racing on the same database cannot both attempt a job. The row starts
// unfinalized; FinalizeAttempt closes it exactly once.
func (s *Store) CreateAttempt(ctx context.Context, sessionID, jobID string) (*Attempt, error) {
	a := &Attempt{
		ID:        idgen.Attempt(),
		SessionID: sessionID,
		JobID:     jobID,
		Status:    AttemptPendingConfirmation,
		StartedAt: s.millis(),
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attempts WHERE session_id = ? AND job_id = ?`,
			sessionID, jobID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateAttempt
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attempts (id, session_id, job_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.SessionID, a.JobID, a.Status, a.StartedAt)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAttempt) {
			return nil, err
		}
		return nil, fmt.Errorf("store: create attempt: %w", err)
	}
	return a, nil
}

// FinalizeAttempt records the terminal status of an attempt. The guard
// on finished_at makes finalization idempotent-hostile on purpose: a
// second call is an error, because attempts are immutable once closed.
func (s *Store) FinalizeAttempt(ctx context.Context, id, status, message string, fieldsFilled int, screenshotRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts
		SET status = ?, message = ?, fields_filled = ?, screenshot_ref = ?, finished_at = ?
		WHERE id = ? AND finished_at IS NULL`,
		status, message, fieldsFilled, screenshotRef, s.millis(), id)
	if err != nil {
		return fmt.Errorf("store: finalize attempt: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: finalize attempt: %s already finalized or unknown", id)
	}
	return nil
}

// ListAttempts returns the session's attempts in start order.
func (s *Store) ListAttempts(ctx context.Context, sessionID string) ([]*Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, job_id, status, message, fields_filled, screenshot_ref,
		started_at, COALESCE(finished_at, 0)
		FROM attempts WHERE session_id = ? ORDER BY started_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list attempts: %w", err)
	}
	defer rows.Close()

	var out []*Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.JobID, &a.Status, &a.Message,
			&a.FieldsFilled, &a.ScreenshotRef, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// HasAttempt reports whether the session already attempted the job.
func (s *Store) HasAttempt(ctx context.Context, sessionID, jobID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE session_id = ? AND job_id = ?`,
		sessionID, jobID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: has attempt: %w", err)
	}
	return n > 0, nil
}
