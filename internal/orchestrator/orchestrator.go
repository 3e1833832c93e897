// Package orchestrator implements the pipeline state machine that turns a
// product request into research, epics, stories, specs, code, and a
// validation report. It owns stage sequencing, approval gates, regeneration,
// fallback content, and run status transitions.
//
// The orchestrator never blocks waiting for a human: when it reaches a gated
// stage it persists a paused run and returns control to the caller. A later
// Resume call rebuilds in-memory state from persisted artifacts and
// continues, which is what lets a run survive a process restart while parked
// at an approval gate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/jonathan/product-factory/internal/db"
)

// Result is the structured outcome of one stage executor invocation.
// Succeeded=false is an expected, recoverable failure; executors reserve Go
// errors for invariant violations and cancellation.
type Result struct {
	Succeeded bool
	Content   string
	Metadata  map[string]any
	Error     string
}

// Executor produces one stage's content from its documented inputs.
type Executor interface {
	Name() string
	Execute(ctx context.Context, inputs map[string]string) (*Result, error)
}

// Store is the persistence surface the orchestrator depends on. *db.DB
// satisfies it; tests substitute fakes.
type Store interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	GetProjectByID(ctx context.Context, projectID uuid.UUID) (*db.Project, error)
	UpdateRunStage(ctx context.Context, runID uuid.UUID, status, stage string) error
	MarkRunStarted(ctx context.Context, runID uuid.UUID) error
	CompleteRun(ctx context.Context, runID uuid.UUID) error
	FailRun(ctx context.Context, runID uuid.UUID, message string) error
	PauseRun(ctx context.Context, runID uuid.UUID) error
	AddTokenUsage(ctx context.Context, runID uuid.UUID, prompt, completion int) error

	AppendArtifact(ctx context.Context, runID uuid.UUID, artifactType, name, content string, metadata map[string]any) (*db.Artifact, error)
	LatestArtifactContents(ctx context.Context, runID uuid.UUID) (map[string]string, error)
	CountArtifactsByType(ctx context.Context, runID uuid.UUID, artifactType string) (int, error)

	GetApproval(ctx context.Context, runID uuid.UUID, stage string) (*db.Approval, error)
	UpsertPendingApproval(ctx context.Context, runID uuid.UUID, stage string) (*db.Approval, error)
	SubmitApproval(ctx context.Context, runID uuid.UUID, stage string, approved bool, feedback, action string) (*db.Approval, error)
	ResetApproval(ctx context.Context, runID uuid.UUID, stage string) error
}

// Notifier ingests ordered progress events for delivery to observers.
type Notifier interface {
	Emit(runID uuid.UUID, stage, message string, data map[string]any)
}

// Outcome reports where an execution pass ended.
type Outcome string

const (
	// OutcomeCompleted means the run reached the end of the pipeline.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSuspended means the run is parked at an approval gate.
	OutcomeSuspended Outcome = "suspended"
	// OutcomeRejected means the gate decision was a rejection without
	// regeneration; the run stays paused until a new decision arrives.
	OutcomeRejected Outcome = "rejected"
)

var (
	// ErrRunActive is returned when Start or Resume is called while another
	// execution of the same run is in flight.
	ErrRunActive = errors.New("run is already executing")
	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidStage is returned for stage names outside the gated set.
	ErrInvalidStage = errors.New("invalid stage")
)

// Orchestrator sequences stage executions for runs. Safe for concurrent use
// across distinct runs; concurrent calls for the same run are rejected.
type Orchestrator struct {
	store     Store
	notifier  Notifier
	executors map[string]Executor
	active    activeRuns
}

// New creates an orchestrator. The executors map is keyed by stage name and
// must cover every stage in StageOrder.
func New(store Store, notifier Notifier, executors map[string]Executor) *Orchestrator {
	return &Orchestrator{
		store:     store,
		notifier:  notifier,
		executors: executors,
	}
}

// session is the in-memory execution state for one pass through the
// pipeline. It is rebuilt from persisted artifacts on every Resume; nothing
// in it needs to survive a restart.
type session struct {
	runID          uuid.UUID
	productRequest string
	contents       map[string]string // latest content per artifact type
	feedback       map[string]string // human feedback per gated stage
	regen          map[string]int    // regeneration counter per gated stage
}

func newSession(runID uuid.UUID, productRequest string) *session {
	return &session{
		runID:          runID,
		productRequest: productRequest,
		contents:       make(map[string]string),
		feedback:       make(map[string]string),
		regen:          make(map[string]int),
	}
}

// Start begins executing a pending run from the research stage. It returns
// once the run completes, fails, or suspends at the first approval gate.
func (o *Orchestrator) Start(ctx context.Context, runID uuid.UUID) (Outcome, error) {
	if !o.active.acquire(runID) {
		return "", ErrRunActive
	}
	defer o.active.release(runID)

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if run.Status != db.RunStatusPending {
		return "", fmt.Errorf("cannot start run in status %q", run.Status)
	}

	sess, err := o.loadSession(ctx, run)
	if err != nil {
		return "", o.fail(ctx, runID, err)
	}
	if err := o.store.MarkRunStarted(ctx, runID); err != nil {
		return "", o.fail(ctx, runID, err)
	}
	o.notifier.Emit(runID, StageResearch, "Pipeline started", nil)

	return o.runFrom(ctx, sess, StageResearch)
}

// Resume continues a run parked at the approval gate for fromStage. The
// decision on that stage's approval row determines whether the pipeline
// advances, regenerates the stage, or stays suspended. Calling Resume again
// with no decision change is a no-op.
func (o *Orchestrator) Resume(ctx context.Context, runID uuid.UUID, fromStage string) (Outcome, error) {
	spec, ok := stageTable[fromStage]
	if !ok || !spec.Gated {
		return "", fmt.Errorf("%w: %q is not a gated stage", ErrInvalidStage, fromStage)
	}

	if !o.active.acquire(runID) {
		return "", ErrRunActive
	}
	defer o.active.release(runID)

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if run.Status == db.RunStatusCompleted || run.Status == db.RunStatusFailed {
		return "", fmt.Errorf("cannot resume run in status %q", run.Status)
	}
	if run.CurrentStage != spec.WaitState {
		// The run is not parked at this gate, typically because a repeated
		// Resume arrives after the decision was already consumed. Re-reading
		// the approval row here would replay it, so treat the call as a no-op
		// and leave the run wherever it is parked now.
		return OutcomeSuspended, nil
	}

	sess, err := o.loadSession(ctx, run)
	if err != nil {
		return "", o.fail(ctx, runID, err)
	}

	approval, err := o.store.GetApproval(ctx, runID, fromStage)
	if err != nil {
		return "", o.fail(ctx, runID, err)
	}

	switch {
	case approval == nil || approval.Approved == nil:
		// Decision still pending; stay suspended.
		return OutcomeSuspended, nil

	case *approval.Approved:
		return o.runFrom(ctx, sess, spec.Next)

	case approval.Action == db.ActionRegenerate:
		// Counter derives from prior artifacts of this type so it survives
		// restarts: one prior artifact means this is regeneration #1.
		count, err := o.store.CountArtifactsByType(ctx, runID, spec.ArtifactType)
		if err != nil {
			return "", o.fail(ctx, runID, err)
		}
		if approval.Feedback != nil {
			sess.feedback[fromStage] = *approval.Feedback
		}
		sess.regen[fromStage] = count

		if err := o.executeStage(ctx, sess, spec); err != nil {
			return "", o.fail(ctx, runID, err)
		}
		return o.suspend(ctx, sess, spec)

	default:
		// Rejected with no regeneration requested: a manual dead-end. The
		// run stays paused at the wait state until a new decision arrives.
		if err := o.store.UpdateRunStage(ctx, runID, db.RunStatusPaused, spec.WaitState); err != nil {
			return "", o.fail(ctx, runID, err)
		}
		o.notifier.Emit(runID, spec.WaitState,
			fmt.Sprintf("Stage %q rejected; awaiting a new decision", fromStage), nil)
		return OutcomeRejected, nil
	}
}

// Pause flips a running run to paused. It does not interrupt an in-flight
// stage execution; the flip becomes observable at the next suspension point.
func (o *Orchestrator) Pause(ctx context.Context, runID uuid.UUID) error {
	return o.store.PauseRun(ctx, runID)
}

// loadSession rebuilds in-memory stage contents from persisted artifacts.
func (o *Orchestrator) loadSession(ctx context.Context, run *db.Run) (*session, error) {
	project, err := o.store.GetProjectByID(ctx, run.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found for run %s", run.ID)
	}

	sess := newSession(run.ID, project.ProductRequest)
	contents, err := o.store.LatestArtifactContents(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	for artifactType, content := range contents {
		sess.contents[artifactType] = content
	}
	return sess, nil
}

// runFrom executes stages in order starting at stage name, suspending at the
// first gate it produces and completing the run after validation.
func (o *Orchestrator) runFrom(ctx context.Context, sess *session, start string) (Outcome, error) {
	for name := start; name != ""; {
		spec := stageTable[name]
		if err := o.executeStage(ctx, sess, spec); err != nil {
			return "", o.fail(ctx, sess.runID, err)
		}
		if spec.Gated {
			// The gate row was just created or reset, so the decision is
			// necessarily pending; park the run and return to the caller.
			return o.suspend(ctx, sess, spec)
		}
		name = spec.Next
	}

	if err := o.store.CompleteRun(ctx, sess.runID); err != nil {
		return "", o.fail(ctx, sess.runID, err)
	}
	o.notifier.Emit(sess.runID, StageCompleted, "Pipeline completed", nil)
	return OutcomeCompleted, nil
}

// executeStage runs one stage through the uniform sub-protocol: record the
// stage, invoke the executor, persist either its output or a fallback
// artifact, and (for gated stages) create or reset the approval row.
func (o *Orchestrator) executeStage(ctx context.Context, sess *session, spec StageSpec) error {
	if err := o.store.UpdateRunStage(ctx, sess.runID, db.RunStatusRunning, spec.Name); err != nil {
		return err
	}

	exec, ok := o.executors[spec.Name]
	if !ok {
		return fmt.Errorf("no executor registered for stage %q", spec.Name)
	}

	result, err := exec.Execute(ctx, spec.Inputs(sess))
	if err != nil {
		// The executor raised rather than reporting a structured failure.
		// This is the only fatal path a stage can take.
		return fmt.Errorf("stage %s: %w", spec.Name, err)
	}

	fellBack := !result.Succeeded
	if result.Succeeded {
		if _, err := o.store.AppendArtifact(ctx, sess.runID, spec.ArtifactType, spec.ArtifactName, result.Content, result.Metadata); err != nil {
			return err
		}
		sess.contents[spec.ArtifactType] = result.Content
		o.recordTokenUsage(ctx, sess.runID, result.Metadata)
		o.notifier.Emit(sess.runID, spec.Name,
			fmt.Sprintf("Stage %s completed", spec.Name), nil)
	} else {
		reason := result.Error
		if reason == "" {
			reason = "stage executor reported failure"
		}
		o.notifier.Emit(sess.runID, spec.Name,
			fmt.Sprintf("Stage %s failed: %s", spec.Name, reason),
			map[string]any{"fallback": true})

		content := fallbackContent(spec, reason)
		metadata := map[string]any{"fallback": true, "error": reason}
		if _, err := o.store.AppendArtifact(ctx, sess.runID, spec.ArtifactType, spec.ArtifactName, content, metadata); err != nil {
			return err
		}
		sess.contents[spec.ArtifactType] = content
	}

	if spec.Gated {
		if _, err := o.store.UpsertPendingApproval(ctx, sess.runID, spec.Name); err != nil {
			if !fellBack {
				return err
			}
			// Fallback content is already persisted, so the run can still
			// suspend and a later decision submission will recreate the gate
			// row through its own upsert.
			log.Printf("run %s: failed to create approval row for %s: %v", sess.runID, spec.Name, err)
		}
	}
	return nil
}

// suspend persists the paused state at a gate's wait state and returns
// control to the caller.
func (o *Orchestrator) suspend(ctx context.Context, sess *session, spec StageSpec) (Outcome, error) {
	if err := o.store.UpdateRunStage(ctx, sess.runID, db.RunStatusPaused, spec.WaitState); err != nil {
		return "", o.fail(ctx, sess.runID, err)
	}
	o.notifier.Emit(sess.runID, spec.WaitState,
		fmt.Sprintf("Waiting for approval of %s", spec.Name), nil)
	return OutcomeSuspended, nil
}

// fail marks the run failed with the captured message and propagates err.
func (o *Orchestrator) fail(ctx context.Context, runID uuid.UUID, err error) error {
	if ferr := o.store.FailRun(ctx, runID, err.Error()); ferr != nil {
		log.Printf("run %s: failed to record failure: %v", runID, ferr)
	}
	o.notifier.Emit(runID, "error", err.Error(), nil)
	return err
}

// recordTokenUsage copies executor-reported token counts onto the run. The
// counters are advisory, so a failed update is logged rather than failing
// the stage.
func (o *Orchestrator) recordTokenUsage(ctx context.Context, runID uuid.UUID, metadata map[string]any) {
	prompt := intFromMetadata(metadata, "prompt_tokens")
	completion := intFromMetadata(metadata, "completion_tokens")
	if prompt == 0 && completion == 0 {
		return
	}
	if err := o.store.AddTokenUsage(ctx, runID, prompt, completion); err != nil {
		log.Printf("run %s: failed to record token usage: %v", runID, err)
	}
}

func intFromMetadata(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// fallbackContent synthesizes placeholder output so downstream stages and
// gates always have something to operate on after an executor failure.
func fallbackContent(spec StageSpec, reason string) string {
	return fmt.Sprintf(
		"# %s (placeholder)\n\nThe %s stage did not produce usable output.\n\nReason: %s\n\nRegenerate this stage, or review and proceed with caution.\n",
		spec.ArtifactName, spec.Name, reason)
}
