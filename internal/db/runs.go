package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, project_id, status, current_stage, error_message,
	total_tokens, prompt_tokens, completion_tokens,
	started_at, completed_at, created_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.ProjectID, &run.Status, &run.CurrentStage,
		&run.ErrorMessage, &run.TotalTokens, &run.PromptTokens,
		&run.CompletionTokens, &run.StartedAt, &run.CompletedAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRun creates a new pending run for a project.
func (db *DB) CreateRun(ctx context.Context, projectID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`INSERT INTO runs (project_id, status)
		 VALUES ($1, $2)
		 RETURNING `+runColumns,
		projectID, RunStatusPending,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID. Returns (nil, nil) if not found.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunOwned retrieves a run only if its project belongs to ownerID.
// Returns (nil, nil) if the run does not exist or is owned by someone else.
func (db *DB) GetRunOwned(ctx context.Context, runID, ownerID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT r.id, r.project_id, r.status, r.current_stage, r.error_message,
		        r.total_tokens, r.prompt_tokens, r.completion_tokens,
		        r.started_at, r.completed_at, r.created_at
		 FROM runs r
		 JOIN projects p ON p.id = r.project_id
		 WHERE r.id = $1 AND p.owner_id = $2`,
		runID, ownerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs for a project, newest first.
func (db *DB) ListRuns(ctx context.Context, projectID uuid.UUID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRunStage sets the run's status and current stage in one short
// transaction. The orchestrator is the sole caller.
func (db *DB) UpdateRunStage(ctx context.Context, runID uuid.UUID, status, stage string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1, current_stage = $2 WHERE id = $3`,
		status, stage, runID)
	if err != nil {
		return fmt.Errorf("failed to update run stage: %w", err)
	}
	return nil
}

// MarkRunStarted records the first start time of a run. A resumed run keeps
// its original started_at.
func (db *DB) MarkRunStarted(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET started_at = COALESCE(started_at, NOW()) WHERE id = $1`,
		runID)
	if err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	return nil
}

// CompleteRun marks a run as completed with a completion timestamp.
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1, current_stage = $2, completed_at = NOW()
		 WHERE id = $3`,
		RunStatusCompleted, "completed", runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// FailRun marks a run as failed with the captured error message.
func (db *DB) FailRun(ctx context.Context, runID uuid.UUID, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error_message = $2, completed_at = NOW()
		 WHERE id = $3`,
		RunStatusFailed, message, runID)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	return nil
}

// PauseRun flips a running run to paused. It does not interrupt an in-flight
// stage execution.
func (db *DB) PauseRun(ctx context.Context, runID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2 AND status = $3`,
		RunStatusPaused, runID, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to pause run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotRunning, runID)
	}
	return nil
}

// AddTokenUsage accumulates executor-reported token counts onto the run.
func (db *DB) AddTokenUsage(ctx context.Context, runID uuid.UUID, prompt, completion int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET prompt_tokens = prompt_tokens + $1,
		                 completion_tokens = completion_tokens + $2,
		                 total_tokens = total_tokens + $1 + $2
		 WHERE id = $3`,
		prompt, completion, runID)
	if err != nil {
		return fmt.Errorf("failed to add token usage: %w", err)
	}
	return nil
}

// DeleteRun deletes a run and, via cascade, its artifacts and approvals.
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}
