package api

import (
	"net/http"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/workflow"
)

// ProjectResponse is a project plus the caller's role in it, when any.
type ProjectResponse struct {
	*models.Project
	Role models.ProjectRole `json:"role,omitempty"`
}

// handleCreateProject handles POST /v1/projects.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateProjectInput
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := s.svc.CreateProject(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, "create project", err)
		return
	}
	s.metrics.RecordProjectCreated()

	writeJSON(w, http.StatusCreated, ProjectResponse{Project: project, Role: models.RoleAdmin})
}

// handleListProjects handles GET /v1/projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context(), callerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, "list projects", err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// handleGetProject handles GET /v1/projects/{id}.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, role, err := s.svc.GetProject(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectResponse{Project: project, Role: role})
}

// handleUpdateProject handles PATCH /v1/projects/{id}.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req workflow.UpdateProjectInput
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := s.svc.UpdateProject(r.Context(), callerFrom(r.Context()), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, r, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleDeleteProject handles DELETE /v1/projects/{id}.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if err := s.svc.DeleteProject(r.Context(), callerFrom(r.Context()), projectID); err != nil {
		writeServiceError(w, r, "delete project", err)
		return
	}
	logFor(r.Context()).Info("project deleted", "pid", projectID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListProjectIssues handles GET /v1/projects/{id}/issues.
func (s *Server) handleListProjectIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.svc.ListProjectIssues(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "list issues", err)
		return
	}
	writeIssues(w, issues)
}
