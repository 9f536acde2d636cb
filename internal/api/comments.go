package api

import (
	"net/http"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/workflow"
)

// updateCommentRequest is the JSON body for PUT /v1/comments/{id}.
type updateCommentRequest struct {
	Body string `json:"body"`
}

// handleListComments handles GET /v1/issues/{id}/comments.
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.svc.ListComments(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, "list comments", err)
		return
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// handleCreateComment handles POST /v1/comments.
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateCommentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.CreateComment(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, "create comment", err)
		return
	}
	s.metrics.RecordCommentCreated()
	writeJSON(w, http.StatusCreated, c)
}

// handleUpdateComment handles PUT /v1/comments/{id}.
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var req updateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.UpdateComment(r.Context(), callerFrom(r.Context()), r.PathValue("id"), req.Body)
	if err != nil {
		writeServiceError(w, r, "update comment", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteComment handles DELETE /v1/comments/{id}.
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteComment(r.Context(), callerFrom(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, "delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
