// Package rbac implements project-scoped role checks layered on a global
// system-admin bypass.
package rbac

import (
	"context"
	"fmt"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

// Failure reasons returned by Authorize.
const (
	ReasonNoAccess          = "no project access"
	ReasonInsufficientRole  = "insufficient role"
	ReasonCommentNotAllowed = "only comment author or project admin can modify this comment"
)

// Level returns the numeric level for a project role (higher = more
// permissions). Unknown roles return -1.
func Level(role models.ProjectRole) int {
	switch role {
	case models.RoleAdmin:
		return 2
	case models.RoleMember:
		return 1
	case models.RoleViewer:
		return 0
	default:
		return -1
	}
}

// Satisfies reports whether held grants at least the permissions of required.
// Unknown roles never satisfy and are never satisfied.
func Satisfies(held, required models.ProjectRole) bool {
	h, r := Level(held), Level(required)
	if h < 0 || r < 0 {
		return false
	}
	return h >= r
}

// PermissionReader looks up a user's permission in a project.
// It returns nil, nil when no permission exists.
type PermissionReader interface {
	GetPermission(ctx context.Context, userID, projectID string) (*models.Permission, error)
}

// Gate performs every project-level access decision.
type Gate struct {
	perms PermissionReader
}

// NewGate returns a Gate backed by perms.
func NewGate(perms PermissionReader) *Gate {
	return &Gate{perms: perms}
}

// Authorize checks that user holds at least required in projectID.
// System admins pass without a permission lookup.
func (g *Gate) Authorize(ctx context.Context, user *models.User, projectID string, required models.ProjectRole) error {
	if user == nil {
		return errs.Forbidden(ReasonNoAccess)
	}
	if user.IsSystemAdmin() {
		return nil
	}

	p, err := g.perms.GetPermission(ctx, user.ID, projectID)
	if err != nil {
		return fmt.Errorf("check permission: %w", err)
	}
	if p == nil {
		return errs.Forbidden(ReasonNoAccess)
	}
	if !Satisfies(p.Role, required) {
		return errs.Forbidden(ReasonInsufficientRole)
	}
	return nil
}

// CanModifyComment allows system admins, the comment's author, and admins
// of the project the comment belongs to.
func (g *Gate) CanModifyComment(ctx context.Context, user *models.User, comment *models.Comment, projectID string) error {
	if user == nil {
		return errs.Forbidden(ReasonCommentNotAllowed)
	}
	if user.IsSystemAdmin() || comment.UserID == user.ID {
		return nil
	}
	err := g.Authorize(ctx, user, projectID, models.RoleAdmin)
	if err == nil {
		return nil
	}
	if errs.IsForbidden(err) {
		return errs.Forbidden(ReasonCommentNotAllowed)
	}
	return err
}

// CanView decides read access to a project and returns the caller's
// effective role. Public projects are readable by anyone, including an
// anonymous (nil) user; the effective role is then viewer unless the user
// holds a permission. An anonymous reader of a public project gets "".
func (g *Gate) CanView(ctx context.Context, user *models.User, project *models.Project) (models.ProjectRole, error) {
	if user == nil {
		if project.IsPublic {
			return "", nil
		}
		return "", errs.Forbidden(ReasonNoAccess)
	}

	p, err := g.perms.GetPermission(ctx, user.ID, project.ID)
	if err != nil {
		return "", fmt.Errorf("check permission: %w", err)
	}
	switch {
	case p != nil:
		return p.Role, nil
	case user.IsSystemAdmin():
		return models.RoleAdmin, nil
	case project.IsPublic:
		return models.RoleViewer, nil
	}
	return "", errs.Forbidden(ReasonNoAccess)
}
