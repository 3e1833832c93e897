package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/product-factory/internal/orchestrator"
)

// approvalRequest is the decision payload for one gated stage.
type approvalRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
	Action   string `json:"action,omitempty"`
}

// handleListApprovals returns all approval records for a run.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	approvals, err := s.db.ListApprovals(r.Context(), run.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list approvals")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"approvals": approvals, "count": len(approvals)})
}

// handleGetApproval returns the approval record for one gated stage.
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	approval, err := s.gates.Get(r.Context(), run.ID, r.PathValue("stage"))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if approval == nil {
		s.errorResponse(w, http.StatusNotFound, "No approval recorded for this stage")
		return
	}

	s.jsonResponse(w, http.StatusOK, approval)
}

// handleSubmitApproval records a decision for a gated stage. The caller
// resumes the run separately; submitting a decision never executes stages.
func (s *Server) handleSubmitApproval(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	decision := orchestrator.Decision{
		Approved: req.Approved,
		Feedback: req.Feedback,
		Action:   req.Action,
	}
	approval, err := s.gates.Submit(r.Context(), run.ID, r.PathValue("stage"), decision)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, approval)
}
