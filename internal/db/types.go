package db

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus values. Transitions are monotonic except paused<->running.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusPaused    = "paused"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ArtifactType values, one per pipeline stage.
const (
	ArtifactResearch   = "research"
	ArtifactEpics      = "epics"
	ArtifactStories    = "stories"
	ArtifactSpecs      = "specs"
	ArtifactCode       = "code"
	ArtifactValidation = "validation"
)

// Approval actions requested alongside a decision.
const (
	ActionProceed    = "proceed"
	ActionRegenerate = "regenerate"
	ActionReject     = "reject"
)

// Run represents one pipeline execution of a project.
type Run struct {
	ID               uuid.UUID  `json:"id"`
	ProjectID        uuid.UUID  `json:"project_id"`
	Status           string     `json:"status"`
	CurrentStage     string     `json:"current_stage"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	TotalTokens      int        `json:"total_tokens"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Artifact is one immutable stage-output record.
type Artifact struct {
	ID           uuid.UUID      `json:"id"`
	RunID        uuid.UUID      `json:"run_id"`
	ArtifactType string         `json:"artifact_type"`
	Name         string         `json:"name"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsFallback reports whether this artifact was synthesized after an executor
// failure. The metadata flag is the only signal distinguishing fallback
// content from real output.
func (a *Artifact) IsFallback() bool {
	v, ok := a.Metadata["fallback"].(bool)
	return ok && v
}

// Approval is the single decision record for a (run, gated stage) pair.
// Approved is nil while the decision is pending.
type Approval struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Stage     string    `json:"stage"`
	Approved  *bool     `json:"approved"`
	Feedback  *string   `json:"feedback,omitempty"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project holds a product request and owns its runs.
type Project struct {
	ID             uuid.UUID      `json:"id"`
	OwnerID        uuid.UUID      `json:"owner_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	ProductRequest string         `json:"product_request"`
	Documents      map[string]any `json:"documents,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// User represents an account that owns projects.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
