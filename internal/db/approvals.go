package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const approvalColumns = `id, run_id, stage, approved, feedback, action, created_at, updated_at`

func scanApproval(row pgx.Row) (*Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.RunID, &a.Stage, &a.Approved, &a.Feedback,
		&a.Action, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetApproval retrieves the approval row for a (run, stage) pair.
// Returns (nil, nil) if no decision gate exists yet.
func (db *DB) GetApproval(ctx context.Context, runID uuid.UUID, stage string) (*Approval, error) {
	a, err := scanApproval(db.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE run_id = $1 AND stage = $2`,
		runID, stage))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return a, nil
}

// UpsertPendingApproval creates the approval row for a gated stage, or resets
// an existing one to pending/proceed after the stage re-executed. Feedback is
// preserved for audit.
func (db *DB) UpsertPendingApproval(ctx context.Context, runID uuid.UUID, stage string) (*Approval, error) {
	a, err := scanApproval(db.pool.QueryRow(ctx,
		`INSERT INTO approvals (run_id, stage)
		 VALUES ($1, $2)
		 ON CONFLICT (run_id, stage)
		 DO UPDATE SET approved = NULL, action = $3, updated_at = NOW()
		 RETURNING `+approvalColumns,
		runID, stage, ActionProceed))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert approval for %s: %w", stage, err)
	}
	return a, nil
}

// SubmitApproval records a human decision for a gated stage, updating the
// single row per (run, stage) in place.
func (db *DB) SubmitApproval(ctx context.Context, runID uuid.UUID, stage string, approved bool, feedback, action string) (*Approval, error) {
	a, err := scanApproval(db.pool.QueryRow(ctx,
		`INSERT INTO approvals (run_id, stage, approved, feedback, action)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, stage)
		 DO UPDATE SET approved = $3, feedback = $4, action = $5, updated_at = NOW()
		 RETURNING `+approvalColumns,
		runID, stage, approved, feedback, action))
	if err != nil {
		return nil, fmt.Errorf("failed to submit approval for %s: %w", stage, err)
	}
	return a, nil
}

// ResetApproval clears the decision back to pending with the default action,
// keeping feedback so the audit trail survives regeneration.
func (db *DB) ResetApproval(ctx context.Context, runID uuid.UUID, stage string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE approvals SET approved = NULL, action = $1, updated_at = NOW()
		 WHERE run_id = $2 AND stage = $3`,
		ActionProceed, runID, stage)
	if err != nil {
		return fmt.Errorf("failed to reset approval for %s: %w", stage, err)
	}
	return nil
}

// ListApprovals returns all approval rows for a run ordered by creation time.
func (db *DB) ListApprovals(ctx context.Context, runID uuid.UUID) ([]Approval, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE run_id = $1 ORDER BY created_at`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}
