package workflow

import (
	"context"
	"strings"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/models"
)

const maxCommentLength = 50000

// CreateCommentInput describes a new comment. The author is the caller.
type CreateCommentInput struct {
	IssueID string `json:"issue_id"`
	Body    string `json:"body"`
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errs.Validation("body is required")
	}
	if len(body) > maxCommentLength {
		return errs.Validationf("body must be at most %d characters", maxCommentLength)
	}
	return nil
}

// CreateComment adds a comment to an issue. Requires project member.
func (s *Service) CreateComment(ctx context.Context, caller *models.User, in CreateCommentInput) (*models.Comment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validateBody(in.Body); err != nil {
		return nil, err
	}
	issue, err := s.store.GetIssue(ctx, strings.TrimSpace(in.IssueID))
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, issue.ProjectID, models.RoleMember, "create_comment"); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, caller.ID); err != nil {
		return nil, err
	}

	c := &models.Comment{IssueID: issue.ID, UserID: caller.ID, Body: in.Body}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	s.emit(caller, events.EntityComments, events.ActionCreate, c.ID, issue.ProjectID, c)
	return c, nil
}

// commentForChange loads a comment and checks the caller may modify it.
// It also returns the comment's project id.
func (s *Service) commentForChange(ctx context.Context, caller *models.User, id string) (*models.Comment, string, error) {
	if err := requireCaller(caller); err != nil {
		return nil, "", err
	}
	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, "", err
	}
	issue, err := s.store.GetIssue(ctx, c.IssueID)
	if err != nil {
		return nil, "", err
	}
	if err := s.gate.CanModifyComment(ctx, caller, c, issue.ProjectID); err != nil {
		return nil, "", err
	}
	return c, issue.ProjectID, nil
}

// UpdateComment rewrites a comment. Allowed for its author, project admins
// and system admins.
func (s *Service) UpdateComment(ctx context.Context, caller *models.User, id, body string) (*models.Comment, error) {
	if err := validateBody(body); err != nil {
		return nil, err
	}
	c, projectID, err := s.commentForChange(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	c.Body = body
	if err := s.store.UpdateComment(ctx, c); err != nil {
		return nil, err
	}
	s.emit(caller, events.EntityComments, events.ActionUpdate, c.ID, projectID, c)
	return c, nil
}

// DeleteComment removes a comment under the same rule as UpdateComment.
func (s *Service) DeleteComment(ctx context.Context, caller *models.User, id string) error {
	c, projectID, err := s.commentForChange(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, c.ID); err != nil {
		return err
	}
	s.emit(caller, events.EntityComments, events.ActionDelete, c.ID, projectID, c)
	return nil
}

// ListComments returns an issue's comments if the caller may view its project.
func (s *Service) ListComments(ctx context.Context, caller *models.User, issueID string) ([]*models.Comment, error) {
	issue, err := s.GetIssue(ctx, caller, issueID)
	if err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, issue.ID)
}
