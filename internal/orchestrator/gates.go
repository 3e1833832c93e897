package orchestrator

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/product-factory/internal/db"
)

// Decision is a human verdict on a gated stage's output.
type Decision struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty" validate:"max=20000"`
	Action   string `json:"action,omitempty" validate:"omitempty,oneof=proceed regenerate reject"`
}

// Validate checks the decision payload before it touches any state.
func (d *Decision) Validate() error {
	return validator.New().Struct(d)
}

// Gates manages the approval records for gated stages. It is the only writer
// of decisions; the orchestrator only resets them after regeneration.
type Gates struct {
	store    Store
	notifier Notifier
}

// NewGates creates an approval gate manager.
func NewGates(store Store, notifier Notifier) *Gates {
	return &Gates{store: store, notifier: notifier}
}

// Get returns the approval row for a gated stage, or (nil, nil) when the
// pipeline has not reached that gate yet.
func (g *Gates) Get(ctx context.Context, runID uuid.UUID, stage string) (*db.Approval, error) {
	if !IsGatedStage(stage) {
		return nil, fmt.Errorf("%w: %q is not a gated stage", ErrInvalidStage, stage)
	}
	return g.store.GetApproval(ctx, runID, stage)
}

// Submit records a decision for a gated stage. Invalid stage names or
// actions are rejected before any state is touched; the action defaults to
// proceed. One progress event describes the decision.
func (g *Gates) Submit(ctx context.Context, runID uuid.UUID, stage string, decision Decision) (*db.Approval, error) {
	if !IsGatedStage(stage) {
		return nil, fmt.Errorf("%w: %q is not a gated stage", ErrInvalidStage, stage)
	}
	if decision.Action == "" {
		decision.Action = db.ActionProceed
	}
	if err := decision.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision: %w", err)
	}

	approval, err := g.store.SubmitApproval(ctx, runID, stage, decision.Approved, decision.Feedback, decision.Action)
	if err != nil {
		return nil, err
	}

	verdict := "rejected"
	if decision.Approved {
		verdict = "approved"
	}
	g.notifier.Emit(runID, stage,
		fmt.Sprintf("Stage %q %s", stage, verdict),
		map[string]any{"action": decision.Action})
	return approval, nil
}

// ResetForRegeneration clears the decision back to pending while preserving
// the feedback text for audit.
func (g *Gates) ResetForRegeneration(ctx context.Context, runID uuid.UUID, stage string) error {
	if !IsGatedStage(stage) {
		return fmt.Errorf("%w: %q is not a gated stage", ErrInvalidStage, stage)
	}
	return g.store.ResetApproval(ctx, runID, stage)
}
