package workflow

import (
	"context"
	"net/mail"
	"strings"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/models"
)

// CreateUserInput describes a new user. SystemRole defaults to user.
type CreateUserInput struct {
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	SystemRole models.SystemRole `json:"system_role,omitempty"`
	AvatarURL  string            `json:"avatar_url,omitempty"`
}

// CreateUser registers a user. Only system admins (or the CLI operator) may
// create users.
func (s *Service) CreateUser(ctx context.Context, caller *models.User, in CreateUserInput) (*models.User, error) {
	if err := requireSystemAdmin(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errs.Validation("name is required")
	}
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errs.Validationf("invalid email %q", email)
	}
	role := models.SystemRole(strings.ToLower(strings.TrimSpace(string(in.SystemRole))))
	if role == "" {
		role = models.SystemRoleUser
	}
	if !models.IsValidSystemRole(role) {
		return nil, errs.Validationf("invalid system role %q (valid: admin, user)", in.SystemRole)
	}

	u := &models.User{Name: name, Email: email, SystemRole: role, AvatarURL: strings.TrimSpace(in.AvatarURL)}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", "user_id", u.ID, "email", u.Email, "uid", caller.ID)
	s.emit(caller, events.EntityUsers, events.ActionCreate, u.ID, "", u)
	return u, nil
}

// GetUser returns a user. Any authenticated caller may look users up.
func (s *Service) GetUser(ctx context.Context, caller *models.User, id string) (*models.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, id)
}

// ListUsers returns all users to an authenticated caller.
func (s *Service) ListUsers(ctx context.Context, caller *models.User) ([]*models.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// SetSystemRole changes a user's global role. Only system admins may do
// this, and the last system admin cannot be demoted.
func (s *Service) SetSystemRole(ctx context.Context, caller *models.User, userID string, role models.SystemRole) (*models.User, error) {
	if err := requireSystemAdmin(caller); err != nil {
		return nil, err
	}
	role = models.SystemRole(strings.ToLower(strings.TrimSpace(string(role))))
	if !models.IsValidSystemRole(role) {
		return nil, errs.Validationf("invalid system role %q (valid: admin, user)", role)
	}
	if err := s.store.SetSystemRole(ctx, userID, role); err != nil {
		return nil, err
	}
	s.log.Info("system role changed", "user_id", userID, "role", role, "uid", caller.ID)
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.emit(caller, events.EntityUsers, events.ActionUpdate, u.ID, "", u)
	return u, nil
}
