package api

import (
	"net/http"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/workflow"
)

// setSystemRoleRequest is the JSON body for PATCH /v1/users/{id}/role.
type setSystemRoleRequest struct {
	SystemRole models.SystemRole `json:"system_role"`
}

// handleListUsers handles GET /v1/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context(), callerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, "list users", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// handleCreateUser handles POST /v1/users.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateUserInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.svc.CreateUser(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// handleGetUser handles GET /v1/users/{id}.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.GetUser(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleSetSystemRole handles PATCH /v1/users/{id}/role.
func (s *Server) handleSetSystemRole(w http.ResponseWriter, r *http.Request) {
	var req setSystemRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.svc.SetSystemRole(r.Context(), callerFrom(r.Context()), r.PathValue("id"), req.SystemRole)
	if err != nil {
		writeServiceError(w, r, "set system role", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
