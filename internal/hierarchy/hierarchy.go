// Package hierarchy enforces the parent/subtask invariants of issues:
//
//   - an issue is a subtask exactly when it has a parent
//   - a parent is never itself a subtask
//   - parent and child share a project
//   - an issue with subtasks cannot become a subtask
//   - an issue is never its own parent
//
// Every violation is reported as an errs.ValidationError before anything is
// persisted. A missing parent is reported as errs.NotFoundError.
package hierarchy

import (
	"context"
	"strings"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

// Rejection reasons.
const (
	MsgSubtaskNeedsParent   = "Subtask must have a parent issue"
	MsgOnlySubtaskHasParent = "Only subtasks can have a parent issue"
	MsgNestedSubtask        = "Subtask cannot have another subtask as parent"
	MsgParentOtherProject   = "Parent issue must be in the same project"
	MsgUpdateHasSubtasks    = "Cannot convert issue to subtask because it has existing subtasks"
	MsgDetachSubtask        = "Cannot remove parent from subtask. Change type first."
	MsgAlreadySubtask       = "Issue is already a subtask"
	MsgConvertHasSubtasks   = "Cannot convert issue with subtasks to subtask"
	MsgSubtaskAsParent      = "Cannot set subtask as parent"
	MsgOwnParent            = "Issue cannot be its own parent"
	MsgOnlySubtaskToIssue   = "Only subtasks can be converted to regular issues"
)

const entityParentIssue = "parent issue"

// IssueReader is the store surface the validator needs. GetIssue reports a
// missing issue with an errs.NotFoundError.
type IssueReader interface {
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	CountChildren(ctx context.Context, issueID string) (int, error)
}

// Proposal is the hierarchy-relevant part of a create or update request.
type Proposal struct {
	ProjectID     string
	Type          models.Type
	ParentIssueID string
}

func (p Proposal) parent() string {
	return strings.TrimSpace(p.ParentIssueID)
}

// Validator evaluates invariants against the current store state.
type Validator struct {
	issues IssueReader
}

// New returns a Validator reading from issues.
func New(issues IssueReader) *Validator {
	return &Validator{issues: issues}
}

// ValidateCreate checks type/parent consistency and, when a parent is named,
// that it exists, is not a subtask, and lives in the proposed project.
func (v *Validator) ValidateCreate(ctx context.Context, p Proposal) error {
	parentID := p.parent()
	if p.Type == models.TypeSubtask && parentID == "" {
		return errs.Validation(MsgSubtaskNeedsParent)
	}
	if parentID != "" && p.Type != models.TypeSubtask {
		return errs.Validation(MsgOnlySubtaskHasParent)
	}
	if parentID == "" {
		return nil
	}

	parent, err := v.loadParent(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.Type == models.TypeSubtask {
		return errs.Validation(MsgNestedSubtask)
	}
	if parent.ProjectID != p.ProjectID {
		return errs.Validation(MsgParentOtherProject)
	}
	return nil
}

// ValidateUpdate re-runs the create checks against the proposed state, then
// rejects turning an issue with subtasks into a subtask and detaching a
// subtask from its parent without changing its type.
func (v *Validator) ValidateUpdate(ctx context.Context, existing *models.Issue, p Proposal) error {
	if p.parent() != "" && p.parent() == existing.ID {
		return errs.Validation(MsgOwnParent)
	}
	if p.Type == models.TypeSubtask && existing.ParentID() != "" && p.parent() == "" {
		return errs.Validation(MsgDetachSubtask)
	}
	if err := v.ValidateCreate(ctx, p); err != nil {
		return err
	}
	if p.Type != models.TypeSubtask {
		return nil
	}

	n, err := v.issues.CountChildren(ctx, existing.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return errs.Validation(MsgUpdateHasSubtasks)
	}
	return nil
}

// ValidateConvertToSubtask checks an explicit request to make issue a
// subtask of parentID.
func (v *Validator) ValidateConvertToSubtask(ctx context.Context, issue *models.Issue, parentID string) error {
	parentID = strings.TrimSpace(parentID)
	if issue.Type == models.TypeSubtask {
		return errs.Validation(MsgAlreadySubtask)
	}
	n, err := v.issues.CountChildren(ctx, issue.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return errs.Validation(MsgConvertHasSubtasks)
	}
	if parentID == "" {
		return errs.Validation(MsgSubtaskNeedsParent)
	}

	parent, err := v.loadParent(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.Type == models.TypeSubtask {
		return errs.Validation(MsgSubtaskAsParent)
	}
	if parent.ProjectID != issue.ProjectID {
		return errs.Validation(MsgParentOtherProject)
	}
	if parent.ID == issue.ID {
		return errs.Validation(MsgOwnParent)
	}
	return nil
}

// ValidateConvertToIssue accepts only subtasks. The caller resets the type
// to task and clears the parent.
func ValidateConvertToIssue(issue *models.Issue) error {
	if issue.Type != models.TypeSubtask {
		return errs.Validation(MsgOnlySubtaskToIssue)
	}
	return nil
}

func (v *Validator) loadParent(ctx context.Context, id string) (*models.Issue, error) {
	parent, err := v.issues.GetIssue(ctx, id)
	if errs.IsNotFound(err) {
		return nil, errs.NotFound(entityParentIssue, id)
	}
	if err != nil {
		return nil, err
	}
	return parent, nil
}
