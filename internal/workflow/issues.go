package workflow

import (
	"context"
	"strings"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/hierarchy"
	"github.com/marcus/taskflow/internal/models"
)

const maxTitleLength = 255

// CreateIssueInput describes a new issue. Status defaults to backlog,
// priority to medium, and the reporter to the caller.
type CreateIssueInput struct {
	ProjectID     string          `json:"project_id"`
	Title         string          `json:"title"`
	Type          models.Type     `json:"type"`
	Status        models.Status   `json:"status,omitempty"`
	Priority      models.Priority `json:"priority,omitempty"`
	ListPosition  float64         `json:"list_position,omitempty"`
	Description   string          `json:"description,omitempty"`
	Estimate      int             `json:"estimate,omitempty"`
	TimeSpent     int             `json:"time_spent,omitempty"`
	TimeRemaining int             `json:"time_remaining,omitempty"`
	ReporterID    string          `json:"reporter_id,omitempty"`
	ParentIssueID string          `json:"parent_issue_id,omitempty"`
	AssigneeIDs   []string        `json:"assignee_ids,omitempty"`
}

// UpdateIssueInput carries the fields to change; nil fields are left alone.
// An empty ParentIssueID clears the parent. ProjectID, when set, must match
// the issue's project: issues never move between projects.
type UpdateIssueInput struct {
	ProjectID     string           `json:"project_id,omitempty"`
	Title         *string          `json:"title,omitempty"`
	Type          *models.Type     `json:"type,omitempty"`
	Status        *models.Status   `json:"status,omitempty"`
	Priority      *models.Priority `json:"priority,omitempty"`
	ListPosition  *float64         `json:"list_position,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Estimate      *int             `json:"estimate,omitempty"`
	TimeSpent     *int             `json:"time_spent,omitempty"`
	TimeRemaining *int             `json:"time_remaining,omitempty"`
	ReporterID    *string          `json:"reporter_id,omitempty"`
	ParentIssueID *string          `json:"parent_issue_id,omitempty"`
	AssigneeIDs   *[]string        `json:"assignee_ids,omitempty"`
}

func (in *CreateIssueInput) normalize() error {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Title = strings.TrimSpace(in.Title)
	in.ParentIssueID = strings.TrimSpace(in.ParentIssueID)
	in.Type = models.NormalizeType(string(in.Type))
	in.Status = models.NormalizeStatus(string(in.Status))
	in.Priority = models.NormalizePriority(string(in.Priority))
	if in.Status == "" {
		in.Status = models.StatusBacklog
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}

	if in.ProjectID == "" {
		return errs.Validation("project_id is required")
	}
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if err := validateEnums(in.Type, in.Status, in.Priority); err != nil {
		return err
	}
	return validateTimes(in.Estimate, in.TimeSpent, in.TimeRemaining)
}

func validateTitle(title string) error {
	if title == "" {
		return errs.Validation("title is required")
	}
	if len(title) > maxTitleLength {
		return errs.Validationf("title must be at most %d characters", maxTitleLength)
	}
	return nil
}

func validateEnums(t models.Type, st models.Status, p models.Priority) error {
	if !models.IsValidType(t) {
		return errs.Validationf("invalid type %q (valid: story, task, bug, subtask)", t)
	}
	if !models.IsValidStatus(st) {
		return errs.Validationf("invalid status %q (valid: backlog, selected, in_progress, done)", st)
	}
	if !models.IsValidPriority(p) {
		return errs.Validationf("invalid priority %q (valid: lowest, low, medium, high, highest)", p)
	}
	return nil
}

func validateTimes(values ...int) error {
	for _, v := range values {
		if v < 0 {
			return errs.Validation("estimate and time tracking values must not be negative")
		}
	}
	return nil
}

// resolveAssignees checks every id names an existing user.
func (s *Service) resolveAssignees(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := s.store.GetUser(ctx, id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// CreateIssue authorizes the caller as a project member, validates the
// hierarchy, mints the next issue key, and persists the issue.
func (s *Service) CreateIssue(ctx context.Context, caller *models.User, in CreateIssueInput) (*models.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, in.ProjectID, models.RoleMember, "create_issue"); err != nil {
		return nil, err
	}

	reporterID := strings.TrimSpace(in.ReporterID)
	if reporterID == "" {
		reporterID = caller.ID
	}
	if _, err := s.store.GetUser(ctx, reporterID); err != nil {
		return nil, err
	}

	if err := s.hierarchy.ValidateCreate(ctx, hierarchy.Proposal{
		ProjectID:     in.ProjectID,
		Type:          in.Type,
		ParentIssueID: in.ParentIssueID,
	}); err != nil {
		return nil, err
	}

	assignees, err := s.resolveAssignees(ctx, in.AssigneeIDs)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.NextIssueKey(ctx, s.store, in.ProjectID)
	if err != nil {
		return nil, err
	}

	issue := &models.Issue{
		Key:           key,
		ProjectID:     in.ProjectID,
		Title:         in.Title,
		Type:          in.Type,
		Status:        in.Status,
		Priority:      in.Priority,
		ListPosition:  in.ListPosition,
		Description:   in.Description,
		Estimate:      in.Estimate,
		TimeSpent:     in.TimeSpent,
		TimeRemaining: in.TimeRemaining,
		ReporterID:    reporterID,
	}
	if in.ParentIssueID != "" {
		parent := in.ParentIssueID
		issue.ParentIssueID = &parent
	}
	if err := s.store.CreateIssue(ctx, issue, assignees); err != nil {
		return nil, err
	}

	s.log.Info("issue created", "issue_id", issue.ID, "key", issue.Key, "project_id", issue.ProjectID, "uid", caller.ID)
	s.emit(caller, events.EntityIssues, events.ActionCreate, issue.ID, issue.ProjectID, issue)
	return issue, nil
}

// UpdateIssue applies in to an existing issue after the member check and
// the hierarchy checks on the proposed state.
func (s *Service) UpdateIssue(ctx context.Context, caller *models.User, id string, in UpdateIssueInput) (*models.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, issue.ProjectID, models.RoleMember, "update_issue"); err != nil {
		return nil, err
	}
	if pid := strings.TrimSpace(in.ProjectID); pid != "" && pid != issue.ProjectID {
		return nil, errs.Validation("issues cannot be moved to another project")
	}

	updated := *issue
	if in.Title != nil {
		updated.Title = strings.TrimSpace(*in.Title)
		if err := validateTitle(updated.Title); err != nil {
			return nil, err
		}
	}
	if in.Type != nil {
		updated.Type = models.NormalizeType(string(*in.Type))
	}
	if in.Status != nil {
		updated.Status = models.NormalizeStatus(string(*in.Status))
	}
	if in.Priority != nil {
		updated.Priority = models.NormalizePriority(string(*in.Priority))
	}
	if err := validateEnums(updated.Type, updated.Status, updated.Priority); err != nil {
		return nil, err
	}
	if in.ListPosition != nil {
		updated.ListPosition = *in.ListPosition
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Estimate != nil {
		updated.Estimate = *in.Estimate
	}
	if in.TimeSpent != nil {
		updated.TimeSpent = *in.TimeSpent
	}
	if in.TimeRemaining != nil {
		updated.TimeRemaining = *in.TimeRemaining
	}
	if err := validateTimes(updated.Estimate, updated.TimeSpent, updated.TimeRemaining); err != nil {
		return nil, err
	}
	if in.ReporterID != nil {
		reporterID := strings.TrimSpace(*in.ReporterID)
		if _, err := s.store.GetUser(ctx, reporterID); err != nil {
			return nil, err
		}
		updated.ReporterID = reporterID
	}
	if in.ParentIssueID != nil {
		updated.ParentIssueID = nil
		if parent := strings.TrimSpace(*in.ParentIssueID); parent != "" {
			updated.ParentIssueID = &parent
		}
	}

	if err := s.hierarchy.ValidateUpdate(ctx, issue, hierarchy.Proposal{
		ProjectID:     issue.ProjectID,
		Type:          updated.Type,
		ParentIssueID: updated.ParentID(),
	}); err != nil {
		return nil, err
	}

	var assignees *[]string
	if in.AssigneeIDs != nil {
		ids, err := s.resolveAssignees(ctx, *in.AssigneeIDs)
		if err != nil {
			return nil, err
		}
		assignees = &ids
	}

	if err := s.store.UpdateIssue(ctx, &updated, assignees); err != nil {
		return nil, err
	}
	s.log.Debug("issue updated", "issue_id", updated.ID, "key", updated.Key, "uid", caller.ID)
	s.emit(caller, events.EntityIssues, events.ActionUpdate, updated.ID, updated.ProjectID, &updated)
	return &updated, nil
}

// DeleteIssue requires project admin and applies the subtask delete policy.
func (s *Service) DeleteIssue(ctx context.Context, caller *models.User, id string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, issue.ProjectID, models.RoleAdmin, "delete_issue"); err != nil {
		return err
	}

	n, err := s.store.DeleteIssue(ctx, issue.ID, s.deletePolicy)
	if err != nil {
		return err
	}
	switch {
	case n == 0:
	case s.deletePolicy == DeleteCascade:
		s.log.Info("subtasks deleted with parent", "issue_id", issue.ID, "count", n)
	case s.deletePolicy == DeleteOrphan:
		s.log.Info("subtasks detached from deleted parent", "issue_id", issue.ID, "count", n)
	}
	s.log.Info("issue deleted", "issue_id", issue.ID, "key", issue.Key, "uid", caller.ID)
	s.emit(caller, events.EntityIssues, events.ActionDelete, issue.ID, issue.ProjectID, issue)
	return nil
}

// ConvertToSubtask makes an issue a subtask of parentID.
func (s *Service) ConvertToSubtask(ctx context.Context, caller *models.User, id, parentID string) (*models.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, issue.ProjectID, models.RoleMember, "convert_to_subtask"); err != nil {
		return nil, err
	}
	if err := s.hierarchy.ValidateConvertToSubtask(ctx, issue, parentID); err != nil {
		return nil, err
	}

	parent := strings.TrimSpace(parentID)
	issue.Type = models.TypeSubtask
	issue.ParentIssueID = &parent
	if err := s.store.UpdateIssue(ctx, issue, nil); err != nil {
		return nil, err
	}
	s.emit(caller, events.EntityIssues, events.ActionUpdate, issue.ID, issue.ProjectID, issue)
	return issue, nil
}

// ConvertToIssue turns a subtask into a standalone task.
func (s *Service) ConvertToIssue(ctx context.Context, caller *models.User, id string) (*models.Issue, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, issue.ProjectID, models.RoleMember, "convert_to_issue"); err != nil {
		return nil, err
	}
	if err := hierarchy.ValidateConvertToIssue(issue); err != nil {
		return nil, err
	}

	issue.Type = models.TypeTask
	issue.ParentIssueID = nil
	if err := s.store.UpdateIssue(ctx, issue, nil); err != nil {
		return nil, err
	}
	s.emit(caller, events.EntityIssues, events.ActionUpdate, issue.ID, issue.ProjectID, issue)
	return issue, nil
}

// GetIssue returns an issue the caller may view.
func (s *Service) GetIssue(ctx context.Context, caller *models.User, id string) (*models.Issue, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.viewProject(ctx, caller, issue.ProjectID); err != nil {
		return nil, err
	}
	return issue, nil
}

// ListProjectIssues returns a project's issues in board order.
func (s *Service) ListProjectIssues(ctx context.Context, caller *models.User, projectID string) ([]*models.Issue, error) {
	if _, _, err := s.viewProject(ctx, caller, projectID); err != nil {
		return nil, err
	}
	return s.store.ListIssues(ctx, projectID)
}

// ListSubtasks returns the subtasks of an issue.
func (s *Service) ListSubtasks(ctx context.Context, caller *models.User, id string) ([]*models.Issue, error) {
	issue, err := s.GetIssue(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListChildren(ctx, issue.ID)
}

// SearchIssues matches term against keys, titles and descriptions. Without
// a project it searches everything and keeps what the caller may view.
func (s *Service) SearchIssues(ctx context.Context, caller *models.User, term, projectID string) ([]*models.Issue, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errs.Validation("search term is required")
	}
	if projectID != "" {
		if _, _, err := s.viewProject(ctx, caller, projectID); err != nil {
			return nil, err
		}
		return s.store.SearchIssues(ctx, term, projectID)
	}

	found, err := s.store.SearchIssues(ctx, term, "")
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool)
	out := make([]*models.Issue, 0, len(found))
	for _, issue := range found {
		ok, seen := visible[issue.ProjectID]
		if !seen {
			_, _, err := s.viewProject(ctx, caller, issue.ProjectID)
			switch {
			case err == nil:
				ok = true
			case errs.IsForbidden(err):
				ok = false
			default:
				return nil, err
			}
			visible[issue.ProjectID] = ok
		}
		if ok {
			out = append(out, issue)
		}
	}
	return out, nil
}
