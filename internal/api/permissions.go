package api

import (
	"net/http"

	"github.com/marcus/taskflow/internal/models"
)

// PermissionRequest is the JSON body for POST and PUT
// /v1/projects/{id}/permissions/{userID}.
type PermissionRequest struct {
	Role models.ProjectRole `json:"role"`
}

// handleListPermissions handles GET /v1/projects/{id}/permissions.
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.svc.ListPermissions(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "list permissions", err)
		return
	}
	if perms == nil {
		perms = []*models.Permission{}
	}
	writeJSON(w, http.StatusOK, perms)
}

// handleGetPermission handles GET /v1/projects/{id}/permissions/{userID}.
func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetPermission(r.Context(), callerFrom(r.Context()), r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		writeServiceError(w, r, "get permission", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleAddCollaborator handles POST /v1/projects/{id}/permissions/{userID}.
func (s *Server) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.svc.AddCollaborator(r.Context(), callerFrom(r.Context()), r.PathValue("id"), r.PathValue("userID"), req.Role)
	if err != nil {
		writeServiceError(w, r, "add collaborator", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleUpdateCollaborator handles PUT /v1/projects/{id}/permissions/{userID}.
func (s *Server) handleUpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.svc.UpdateCollaboratorRole(r.Context(), callerFrom(r.Context()), r.PathValue("id"), r.PathValue("userID"), req.Role)
	if err != nil {
		writeServiceError(w, r, "update collaborator", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRemoveCollaborator handles DELETE /v1/projects/{id}/permissions/{userID}.
func (s *Server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveCollaborator(r.Context(), callerFrom(r.Context()), r.PathValue("id"), r.PathValue("userID")); err != nil {
		writeServiceError(w, r, "remove collaborator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
