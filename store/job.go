package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertJob inserts a discovered job, or refreshes its match columns
// when the same posting is rediscovered.
func (s *Store) UpsertJob(ctx context.Context, j *Job) error {
	if j.DiscoveredAt == 0 {
		j.DiscoveredAt = s.millis()
	}
	if j.SkillsJSON == "" {
		j.SkillsJSON = "[]"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, company, location, description, source, url,
		remote, salary_min, salary_max, skills_json, match_score, fit, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET match_score = excluded.match_score, fit = excluded.fit`,
		j.ID, j.Title, j.Company, j.Location, j.Description, j.Source, j.URL,
		boolInt(j.Remote), j.SalaryMin, j.SalaryMax, j.SkillsJSON, j.MatchScore, j.Fit, j.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("store: upsert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id. Returns nil, nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, company, location, description, source, url,
		remote, salary_min, salary_max, skills_json, match_score, fit, discovered_at
		FROM jobs WHERE id = ?`, id)

	var j Job
	var remote int
	err := row.Scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.Description, &j.Source,
		&j.URL, &remote, &j.SalaryMin, &j.SalaryMax, &j.SkillsJSON, &j.MatchScore, &j.Fit,
		&j.DiscoveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	j.Remote = remote == 1
	return &j, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
