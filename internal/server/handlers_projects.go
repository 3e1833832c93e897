package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/product-factory/internal/server/middleware"
)

// projectRequest is the create/update payload for a project.
type projectRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	ProductRequest string `json:"product_request" validate:"required,min=1"`
}

// handleCreateProject creates a project owned by the authenticated user.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return
	}

	req, ok := s.decodeProjectRequest(w, r)
	if !ok {
		return
	}

	project, err := s.db.CreateProject(r.Context(), ownerID, req.Name, req.Description, req.ProductRequest, nil)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	s.jsonResponse(w, http.StatusCreated, project)
}

// handleListProjects lists the authenticated user's projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return
	}

	projects, err := s.db.ListProjects(r.Context(), ownerID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"projects": projects, "count": len(projects)})
}

// handleGetProject returns one project by ID.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
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

	s.jsonResponse(w, http.StatusOK, project)
}

// handleUpdateProject updates a project's fields.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return
	}
	projectID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	req, ok := s.decodeProjectRequest(w, r)
	if !ok {
		return
	}

	project, err := s.db.UpdateProject(r.Context(), projectID, ownerID, req.Name, req.Description, req.ProductRequest)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update project")
		return
	}
	if project == nil {
		s.errorResponse(w, http.StatusNotFound, "Project not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, project)
}

// handleDeleteProject deletes a project and its runs.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.authedUser(w, r)
	if !ok {
		return
	}
	projectID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := s.db.DeleteProject(r.Context(), projectID, ownerID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeProjectRequest(w http.ResponseWriter, r *http.Request) (*projectRequest, bool) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if req.Name == "" || req.ProductRequest == "" {
		s.errorResponse(w, http.StatusBadRequest, "name and product_request are required")
		return nil, false
	}
	return &req, true
}

// authedUser extracts the authenticated user ID, writing a 401 on failure.
func (s *Server) authedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a UUID path segment, writing a 400 on failure.
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
