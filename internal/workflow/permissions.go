package workflow

import (
	"context"
	"strings"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/models"
)

func parseRole(role models.ProjectRole) (models.ProjectRole, error) {
	r := models.NormalizeProjectRole(string(role))
	if !models.IsValidProjectRole(r) {
		return "", errs.Validationf("invalid role %q (valid: viewer, member, admin)", role)
	}
	return r, nil
}

// manageProject loads a project and requires the caller to administer it.
func (s *Service) manageProject(ctx context.Context, caller *models.User, projectID, op string) (*models.Project, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, p.ID, models.RoleAdmin, op); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPermissions returns every collaborator of a project.
func (s *Service) ListPermissions(ctx context.Context, caller *models.User, projectID string) ([]*models.Permission, error) {
	p, err := s.manageProject(ctx, caller, projectID, "list_permissions")
	if err != nil {
		return nil, err
	}
	return s.store.ListPermissions(ctx, p.ID)
}

// GetPermission returns one collaborator's permission.
func (s *Service) GetPermission(ctx context.Context, caller *models.User, projectID, userID string) (*models.Permission, error) {
	p, err := s.manageProject(ctx, caller, projectID, "get_permission")
	if err != nil {
		return nil, err
	}
	perm, err := s.store.GetPermission(ctx, userID, p.ID)
	if err != nil {
		return nil, err
	}
	if perm == nil {
		return nil, errs.NotFound("permission", "")
	}
	return perm, nil
}

// AddCollaborator grants userID a role in the project. A user who already
// has a role is a conflict; change it with UpdateCollaboratorRole.
func (s *Service) AddCollaborator(ctx context.Context, caller *models.User, projectID, userID string, role models.ProjectRole) (*models.Permission, error) {
	p, err := s.manageProject(ctx, caller, projectID, "add_collaborator")
	if err != nil {
		return nil, err
	}
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}

	perm := &models.Permission{UserID: u.ID, ProjectID: p.ID, Role: r}
	if err := s.store.SavePermission(ctx, perm); err != nil {
		return nil, err
	}
	s.log.Info("collaborator added", "project_id", p.ID, "user_id", u.ID, "role", r, "uid", caller.ID)
	s.emit(caller, events.EntityPermissions, events.ActionCreate, perm.ID, p.ID, perm)
	return perm, nil
}

// UpdateCollaboratorRole changes a collaborator's role. The last admin of a
// project cannot be demoted.
func (s *Service) UpdateCollaboratorRole(ctx context.Context, caller *models.User, projectID, userID string, role models.ProjectRole) (*models.Permission, error) {
	p, err := s.manageProject(ctx, caller, projectID, "update_collaborator")
	if err != nil {
		return nil, err
	}
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	perm, err := s.store.UpdatePermissionRole(ctx, userID, p.ID, r)
	if err != nil {
		return nil, err
	}
	s.log.Info("collaborator role changed", "project_id", p.ID, "user_id", userID, "role", r, "uid", caller.ID)
	s.emit(caller, events.EntityPermissions, events.ActionUpdate, perm.ID, p.ID, perm)
	return perm, nil
}

// RemoveCollaborator revokes a collaborator's access. The last admin of a
// project cannot be removed.
func (s *Service) RemoveCollaborator(ctx context.Context, caller *models.User, projectID, userID string) error {
	p, err := s.manageProject(ctx, caller, projectID, "remove_collaborator")
	if err != nil {
		return err
	}
	if err := s.store.DeletePermission(ctx, userID, p.ID); err != nil {
		return err
	}
	s.log.Info("collaborator removed", "project_id", p.ID, "user_id", userID, "uid", caller.ID)
	s.emit(caller, events.EntityPermissions, events.ActionDelete, userID, p.ID, map[string]string{"user_id": userID, "project_id": p.ID})
	return nil
}
