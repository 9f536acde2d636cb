package workflow

import (
	"context"
	"strings"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/models"
)

// CreateProjectInput describes a new project. The key is derived from the
// name; Category defaults to software.
type CreateProjectInput struct {
	Name        string          `json:"name"`
	URL         string          `json:"url,omitempty"`
	Description string          `json:"description,omitempty"`
	Category    models.Category `json:"category,omitempty"`
	IsPublic    bool            `json:"is_public,omitempty"`
}

// UpdateProjectInput carries the fields to change. The key and issue
// counter are immutable.
type UpdateProjectInput struct {
	Name        *string          `json:"name,omitempty"`
	URL         *string          `json:"url,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *models.Category `json:"category,omitempty"`
	IsPublic    *bool            `json:"is_public,omitempty"`
}

func validateProjectName(name string) error {
	if name == "" {
		return errs.Validation("name is required")
	}
	if len(name) > maxTitleLength {
		return errs.Validationf("name must be at most %d characters", maxTitleLength)
	}
	return nil
}

func validateCategory(c models.Category) error {
	if !models.IsValidCategory(c) {
		return errs.Validationf("invalid category %q (valid: software, marketing, business)", c)
	}
	return nil
}

// CreateProject derives a unique key from the name and stores the project
// with the caller as its first admin.
func (s *Service) CreateProject(ctx context.Context, caller *models.User, in CreateProjectInput) (*models.Project, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := validateProjectName(name); err != nil {
		return nil, err
	}
	category := models.NormalizeCategory(string(in.Category))
	if category == "" {
		category = models.CategorySoftware
	}
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	key, err := s.keys.UniqueProjectKey(ctx, name, s.store.ProjectKeyExists)
	if err != nil {
		return nil, err
	}

	p := &models.Project{
		Key:         key,
		Name:        name,
		URL:         strings.TrimSpace(in.URL),
		Description: in.Description,
		Category:    category,
		IsPublic:    in.IsPublic,
	}
	if err := s.store.CreateProject(ctx, p, caller.ID); err != nil {
		return nil, err
	}

	s.log.Info("project created", "project_id", p.ID, "key", p.Key, "uid", caller.ID)
	s.emit(caller, events.EntityProjects, events.ActionCreate, p.ID, p.ID, p)
	return p, nil
}

// GetProject returns a project the caller may view with the caller's
// effective role in it.
func (s *Service) GetProject(ctx context.Context, caller *models.User, id string) (*models.Project, models.ProjectRole, error) {
	return s.viewProject(ctx, caller, id)
}

// ListProjects returns the public projects for anonymous callers, every
// project for system admins, and otherwise the public projects plus those
// the caller holds a permission in.
func (s *Service) ListProjects(ctx context.Context, caller *models.User) ([]*models.Project, error) {
	f := models.ProjectFilter{IncludePublic: true}
	switch {
	case caller.IsSystemAdmin():
		f.All = true
	case caller != nil:
		f.UserID = caller.ID
	}
	return s.store.ListProjects(ctx, f)
}

// UpdateProject changes project details. Requires project admin.
func (s *Service) UpdateProject(ctx context.Context, caller *models.User, id string, in UpdateProjectInput) (*models.Project, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, p.ID, models.RoleAdmin, "update_project"); err != nil {
		return nil, err
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
		if err := validateProjectName(p.Name); err != nil {
			return nil, err
		}
	}
	if in.URL != nil {
		p.URL = strings.TrimSpace(*in.URL)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Category != nil {
		p.Category = models.NormalizeCategory(string(*in.Category))
		if err := validateCategory(p.Category); err != nil {
			return nil, err
		}
	}
	if in.IsPublic != nil {
		p.IsPublic = *in.IsPublic
	}

	if err := s.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	s.emit(caller, events.EntityProjects, events.ActionUpdate, p.ID, p.ID, p)
	return p, nil
}

// DeleteProject removes a project with its permissions, issues and
// comments. Requires project admin.
func (s *Service) DeleteProject(ctx context.Context, caller *models.User, id string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, p.ID, models.RoleAdmin, "delete_project"); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, p.ID); err != nil {
		return err
	}
	s.log.Info("project deleted", "project_id", p.ID, "key", p.Key, "uid", caller.ID)
	s.emit(caller, events.EntityProjects, events.ActionDelete, p.ID, p.ID, p)
	return nil
}
