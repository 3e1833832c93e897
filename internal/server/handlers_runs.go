package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/product-factory/internal/db"
	"github.com/jonathan/product-factory/internal/export"
	"github.com/jonathan/product-factory/internal/orchestrator"
)

// executionTimeout bounds one background pipeline pass.
const executionTimeout = 30 * time.Minute

// handleCreateRun creates a pending run for a project.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return
	}
	projectID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	project, err := s.db.GetProject(r.Context(), projectID, ownerID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get project")
		return
	}
	if project == nil {
		s.errorResponse(w, http.StatusNotFound, "Project not found")
		return
	}

	run, err := s.db.CreateRun(r.Context(), projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create run")
		return
	}

	s.jsonResponse(w, http.StatusCreated, run)
}

// handleListRuns lists runs for a project, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return
	}
	projectID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	project, err := s.db.GetProject(r.Context(), projectID, ownerID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get project")
		return
	}
	if project == nil {
		s.errorResponse(w, http.StatusNotFound, "Project not found")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.db.ListRuns(r.Context(), projectID, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleDeleteRun deletes a run and its artifacts and approvals.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	if err := s.db.DeleteRun(r.Context(), run.ID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}
	s.progress.Clear(run.ID)

	w.WriteHeader(http.StatusNoContent)
}

// handleStartRun launches the pipeline in the background and returns 202.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	if run.Status != db.RunStatusPending {
		s.errorResponse(w, http.StatusConflict, fmt.Sprintf("run is %s, only pending runs can be started", run.Status))
		return
	}

	runID := run.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), executionTimeout)
		defer cancel()
		if _, err := s.orchestrator.Start(ctx, runID); err != nil {
			log.Printf("run %s: execution failed: %v", runID, err)
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": "started",
	})
}

// handleResumeRun re-enters the pipeline at a gated stage after a decision.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	stage := r.PathValue("stage")
	if !orchestrator.IsGatedStage(stage) {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("%q is not a gated stage", stage))
		return
	}

	runID := run.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), executionTimeout)
		defer cancel()
		if _, err := s.orchestrator.Resume(ctx, runID, stage); err != nil {
			log.Printf("run %s: resume failed: %v", runID, err)
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": "resuming",
		"stage":  stage,
	})
}

// handlePauseRun requests a pause of a running pipeline.
func (s *Server) handlePauseRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	if err := s.orchestrator.Pause(r.Context(), run.ID); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"run_id": run.ID.String(),
		"status": db.RunStatusPaused,
	})
}

// handleListArtifacts returns the full artifact history for a run.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	artifacts, err := s.db.ListArtifacts(r.Context(), run.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list artifacts")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"artifacts": artifacts, "count": len(artifacts)})
}

// handleGetArtifact returns the latest artifact of one type.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	artifact, err := s.db.LatestArtifactByType(r.Context(), run.ID, r.PathValue("type"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get artifact")
		return
	}
	if artifact == nil {
		s.errorResponse(w, http.StatusNotFound, "Artifact not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, artifact)
}

// handleExportRun streams a zip bundle of the run's artifacts.
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	bundle, err := export.Collect(r.Context(), s.db, run.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to collect export bundle")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.zip"`, run.ID))
	if err := bundle.WriteZip(w); err != nil {
		log.Printf("run %s: export failed: %v", run.ID, err)
	}
}

// ownedRun loads the run named by the {id} path segment, enforcing that it
// belongs to the authenticated user.
func (s *Server) ownedRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return nil, false
	}
	runID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}

	run, err := s.db.GetRunOwned(r.Context(), runID, ownerID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	return run, true
}
