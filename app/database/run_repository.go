package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var runColumns = []string{
	"id", "reason", "status", "succeeded", "aborted", "started_at", "finished_at",
	"sources_attempted", "sources_failed", "items_seen", "items_new", "items_updated",
	"items_rejected", "items_failed", "items_reenriched", "fallbacks", "source_errors",
}

// SQLiteRunRepository persists ingestion run history
type SQLiteRunRepository struct {
	db *DB
}

var _ RunRepository = (*SQLiteRunRepository)(nil)

func NewSQLiteRunRepository(db *DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

// SaveRun inserts the run or replaces an earlier record with the same id.
func (r *SQLiteRunRepository) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run has no id")
	}
	sourceErrors, err := json.Marshal(run.SourceErrors)
	if err != nil {
		return fmt.Errorf("failed to encode source errors: %w", err)
	}
	if run.SourceErrors == nil {
		sourceErrors = []byte("{}")
	}

	query, args, err := sq.Insert("ingestion_runs").Options("OR REPLACE").SetMap(map[string]any{
		"id":                run.ID,
		"reason":            run.Reason,
		"status":            run.Status,
		"succeeded":         run.Succeeded,
		"aborted":           run.Aborted,
		"started_at":        toMillis(run.StartedAt),
		"finished_at":       toMillis(run.FinishedAt),
		"sources_attempted": run.SourcesAttempted,
		"sources_failed":    run.SourcesFailed,
		"items_seen":        run.ItemsSeen,
		"items_new":         run.ItemsNew,
		"items_updated":     run.ItemsUpdated,
		"items_rejected":    run.ItemsRejected,
		"items_failed":      run.ItemsFailed,
		"items_reenriched":  run.ItemsReenriched,
		"fallbacks":         run.Fallbacks,
		"source_errors":     string(sourceErrors),
	}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run insert: %w", err)
	}

	err = r.db.write(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LastRuns returns up to limit runs, most recent first.
func (r *SQLiteRunRepository) LastRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	query, args, err := sq.Select(runColumns...).
		From("ingestion_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build runs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", r.db.classify(ctx, err))
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// LastSuccessfulRun returns nil when no run has succeeded yet.
func (r *SQLiteRunRepository) LastSuccessfulRun(ctx context.Context) (*Run, error) {
	query, args, err := sq.Select(runColumns...).
		From("ingestion_runs").
		Where(sq.Eq{"succeeded": true}).
		OrderBy("finished_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}

	run, err := scanRun(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last successful run: %w", r.db.classify(ctx, err))
	}
	return &run, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                   Run
		startedAt, finishedAt int64
		sourceErrors          string
	)

	err := row.Scan(
		&run.ID, &run.Reason, &run.Status, &run.Succeeded, &run.Aborted, &startedAt, &finishedAt,
		&run.SourcesAttempted, &run.SourcesFailed, &run.ItemsSeen, &run.ItemsNew, &run.ItemsUpdated,
		&run.ItemsRejected, &run.ItemsFailed, &run.ItemsReenriched, &run.Fallbacks, &sourceErrors,
	)
	if err != nil {
		return Run{}, err
	}

	run.StartedAt = fromMillis(startedAt)
	run.FinishedAt = fromMillis(finishedAt)
	if err := json.Unmarshal([]byte(sourceErrors), &run.SourceErrors); err != nil {
		return Run{}, fmt.Errorf("failed to decode source errors: %w", err)
	}
	if run.SourceErrors == nil {
		run.SourceErrors = map[string]string{}
	}

	return run, nil
}
