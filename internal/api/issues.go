package api

import (
	"net/http"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/workflow"
)

// convertToSubtaskRequest is the JSON body for POST /v1/issues/{id}/convert-to-subtask.
type convertToSubtaskRequest struct {
	ParentIssueID string `json:"parent_issue_id"`
}

func writeIssues(w http.ResponseWriter, issues []*models.Issue) {
	if issues == nil {
		issues = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

// handleCreateIssue handles POST /v1/issues.
func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateIssueInput
	if !decodeJSON(w, r, &req) {
		return
	}

	issue, err := s.svc.CreateIssue(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, "create issue", err)
		return
	}
	s.metrics.RecordIssueCreated()

	writeJSON(w, http.StatusCreated, issue)
}

// handleGetIssue handles GET /v1/issues/{id}.
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.svc.GetIssue(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "get issue", err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleUpdateIssue handles PUT /v1/issues/{id}. Only the fields present in
// the body change.
func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var req workflow.UpdateIssueInput
	if !decodeJSON(w, r, &req) {
		return
	}

	issue, err := s.svc.UpdateIssue(r.Context(), callerFrom(r.Context()), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, r, "update issue", err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleDeleteIssue handles DELETE /v1/issues/{id}.
func (s *Server) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteIssue(r.Context(), callerFrom(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, "delete issue", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSubtasks handles GET /v1/issues/{id}/subtasks.
func (s *Server) handleListSubtasks(w http.ResponseWriter, r *http.Request) {
	issues, err := s.svc.ListSubtasks(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "list subtasks", err)
		return
	}
	writeIssues(w, issues)
}

// handleConvertToSubtask handles POST /v1/issues/{id}/convert-to-subtask.
func (s *Server) handleConvertToSubtask(w http.ResponseWriter, r *http.Request) {
	var req convertToSubtaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ParentIssueID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "parent_issue_id is required")
		return
	}

	issue, err := s.svc.ConvertToSubtask(r.Context(), callerFrom(r.Context()), r.PathValue("id"), req.ParentIssueID)
	if err != nil {
		writeServiceError(w, r, "convert to subtask", err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleConvertToIssue handles POST /v1/issues/{id}/convert-to-issue.
func (s *Server) handleConvertToIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.svc.ConvertToIssue(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "convert to issue", err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleSearchIssues handles GET /v1/issues/search?q=&project_id=.
func (s *Server) handleSearchIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	issues, err := s.svc.SearchIssues(r.Context(), callerFrom(r.Context()), q.Get("q"), q.Get("project_id"))
	if err != nil {
		writeServiceError(w, r, "search issues", err)
		return
	}
	writeIssues(w, issues)
}
