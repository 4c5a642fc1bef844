package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// JournalRepo implements [domain.UpdateJournal] backed by SQLite.
type JournalRepo struct {
	DB *sql.DB
}

func (r *JournalRepo) Append(ctx context.Context, a domain.UpdateAttempt) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO update_attempts (id, rollout_id, version, status, message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.RolloutID), a.Version, string(a.Status), a.Message,
		a.StartedAt.UTC().Format(time.RFC3339Nano),
		a.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attempt %q: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert update attempt: %w", err)
	}
	return nil
}

func (r *JournalRepo) List(ctx context.Context) ([]domain.UpdateAttempt, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, rollout_id, version, status, message, started_at, finished_at
		 FROM update_attempts ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list update attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.UpdateAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *JournalRepo) LastForRollout(ctx context.Context, id domain.RolloutID) (domain.UpdateAttempt, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, rollout_id, version, status, message, started_at, finished_at
		 FROM update_attempts WHERE rollout_id = ?
		 ORDER BY started_at DESC LIMIT 1`,
		string(id),
	)
	return scanAttempt(row)
}

func scanAttempt(s scanner) (domain.UpdateAttempt, error) {
	var a domain.UpdateAttempt
	var id, rolloutID, version, status, message, startedAt, finishedAt string
	if err := s.Scan(&id, &rolloutID, &version, &status, &message, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, fmt.Errorf("update attempt: %w", domain.ErrNotFound)
		}
		return a, fmt.Errorf("scan update attempt: %w", err)
	}
	a.ID = id
	a.RolloutID = domain.RolloutID(rolloutID)
	a.Version = version
	a.Status = domain.UpdateStatus(status)
	a.Message = message

	var err error
	if a.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return a, fmt.Errorf("parse started_at: %w", err)
	}
	if a.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return a, fmt.Errorf("parse finished_at: %w", err)
	}
	return a, nil
}
