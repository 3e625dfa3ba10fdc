package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/pagesnap/internal/services/snapshot/storage"
)

// RecordRun stores one run and its per-entity outcomes atomically.
func (s *Store) RecordRun(ctx context.Context, run storage.RunRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	runID := strings.TrimSpace(run.ID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("run start time is required")
	}
	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = run.StartedAt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO snapshot_runs (id, directory, status, reason_code, reason, assets_copied, asset_failures, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		run.Directory,
		string(run.Status),
		run.ReasonCode,
		run.Reason,
		run.AssetsCopied,
		run.AssetFailures,
		toMillis(run.StartedAt),
		toMillis(finishedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("record run: %w", err)
	}
	for i, entity := range run.Entities {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO snapshot_run_entities (run_id, position, entity_id, outcome, code, message)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID,
			i,
			entity.EntityID,
			string(entity.Outcome),
			entity.Code,
			entity.Message,
		); err != nil {
			return fmt.Errorf("record run entity %s: %w", entity.EntityID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record run: %w", err)
	}
	return nil
}

// GetRun returns one run with its entity outcomes.
func (s *Store) GetRun(ctx context.Context, id string) (storage.RunRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RunRecord{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.RunRecord{}, fmt.Errorf("run id is required")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, directory, status, reason_code, reason, assets_copied, asset_failures, started_at, finished_at
		   FROM snapshot_runs
		  WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RunRecord{}, storage.ErrNotFound
		}
		return storage.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	if run.Entities, err = s.runEntities(ctx, run.ID); err != nil {
		return storage.RunRecord{}, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, directory, status, reason_code, reason, assets_copied, asset_failures, started_at, finished_at
		   FROM snapshot_runs
		  ORDER BY started_at DESC, id DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]storage.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list runs: %w", err)
	}
	_ = rows.Close()

	for i := range runs {
		if runs[i].Entities, err = s.runEntities(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) runEntities(ctx context.Context, runID string) ([]storage.RunEntity, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT entity_id, outcome, code, message
		   FROM snapshot_run_entities
		  WHERE run_id = ?
		  ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run entities: %w", err)
	}
	defer rows.Close()

	entities := make([]storage.RunEntity, 0)
	for rows.Next() {
		var entity storage.RunEntity
		var outcome string
		if err := rows.Scan(&entity.EntityID, &outcome, &entity.Code, &entity.Message); err != nil {
			return nil, fmt.Errorf("list run entities: %w", err)
		}
		entity.Outcome = storage.Outcome(outcome)
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run entities: %w", err)
	}
	return entities, nil
}

func scanRun(row rowScanner) (storage.RunRecord, error) {
	var run storage.RunRecord
	var status string
	var startedAt, finishedAt int64
	if err := row.Scan(
		&run.ID,
		&run.Directory,
		&status,
		&run.ReasonCode,
		&run.Reason,
		&run.AssetsCopied,
		&run.AssetFailures,
		&startedAt,
		&finishedAt,
	); err != nil {
		return storage.RunRecord{}, err
	}
	run.Status = storage.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	run.FinishedAt = fromMillis(finishedAt)
	return run, nil
}

var _ storage.RunStore = (*Store)(nil)
