// Package workflow is the access-controlled orchestration layer. Every
// operation resolves the caller's rights through the rbac gate, checks issue
// hierarchy invariants, mints keys, and only then touches the store.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/hierarchy"
	"github.com/marcus/taskflow/internal/keygen"
	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/rbac"
)

// Store is the persistence contract. Missing rows are reported as
// errs.NotFoundError except GetPermission, which returns nil, nil.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	SetSystemRole(ctx context.Context, userID string, role models.SystemRole) error

	GetProject(ctx context.Context, id string) (*models.Project, error)
	ProjectKeyExists(ctx context.Context, key string) (bool, error)
	CreateProject(ctx context.Context, p *models.Project, ownerUserID string) error
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, f models.ProjectFilter) ([]*models.Project, error)
	IncrementIssueCounter(ctx context.Context, projectID string) (*models.Project, error)

	GetPermission(ctx context.Context, userID, projectID string) (*models.Permission, error)
	SavePermission(ctx context.Context, p *models.Permission) error
	UpdatePermissionRole(ctx context.Context, userID, projectID string, role models.ProjectRole) (*models.Permission, error)
	DeletePermission(ctx context.Context, userID, projectID string) error
	ListPermissions(ctx context.Context, projectID string) ([]*models.Permission, error)

	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	CreateIssue(ctx context.Context, i *models.Issue, assigneeIDs []string) error
	UpdateIssue(ctx context.Context, i *models.Issue, assigneeIDs *[]string) error
	DeleteIssue(ctx context.Context, id string, policy models.SubtaskPolicy) (int, error)
	CountChildren(ctx context.Context, parentID string) (int, error)
	ListChildren(ctx context.Context, parentID string) ([]*models.Issue, error)
	ListIssues(ctx context.Context, projectID string) ([]*models.Issue, error)
	SearchIssues(ctx context.Context, term, projectID string) ([]*models.Issue, error)

	GetComment(ctx context.Context, id string) (*models.Comment, error)
	CreateComment(ctx context.Context, c *models.Comment) error
	UpdateComment(ctx context.Context, c *models.Comment) error
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, issueID string) ([]*models.Comment, error)
}

// DeletePolicy decides what happens to subtasks when their parent is deleted.
type DeletePolicy = models.SubtaskPolicy

const (
	// DeleteReject refuses to delete an issue that still has subtasks.
	DeleteReject = models.SubtasksReject
	// DeleteCascade deletes the subtasks along with the parent.
	DeleteCascade = models.SubtasksCascade
	// DeleteOrphan keeps the subtasks as standalone tasks.
	DeleteOrphan = models.SubtasksOrphan
)

// ParseDeletePolicy accepts reject, cascade or orphan (case-insensitive).
// An empty string selects DeleteReject.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DeleteReject, nil
	case DeleteReject, DeleteCascade, DeleteOrphan:
		return p, nil
	}
	return "", fmt.Errorf("invalid subtask delete policy %q (valid: reject, cascade, orphan)", s)
}

// Operator is the identity the CLI acts as. It holds the system admin role
// and never exists in the users table.
var Operator = &models.User{ID: "operator", Name: "operator", SystemRole: models.SystemRoleAdmin}

// Service orchestrates the gate, key generator, hierarchy validator and store.
type Service struct {
	store        Store
	gate         *rbac.Gate
	keys         *keygen.Generator
	hierarchy    *hierarchy.Validator
	deletePolicy DeletePolicy
	notify       events.Notifier
	log          *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for audit lines.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDeletePolicy sets the subtask delete policy.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(s *Service) { s.deletePolicy = p }
}

// WithNotifier sets the receiver of change events.
func WithNotifier(n events.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notify = n
		}
	}
}

// WithKeyGenerator replaces the key generator.
func WithKeyGenerator(g *keygen.Generator) Option {
	return func(s *Service) { s.keys = g }
}

// New returns a Service backed by store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		gate:         rbac.NewGate(store),
		keys:         keygen.New(),
		hierarchy:    hierarchy.New(store),
		deletePolicy: DeleteReject,
		notify:       events.Nop{},
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeletePolicy returns the configured subtask delete policy.
func (s *Service) DeletePolicy() DeletePolicy {
	return s.deletePolicy
}

// emit publishes a committed change.
func (s *Service) emit(caller *models.User, entity events.EntityType, action events.ActionType, entityID, projectID string, data any) {
	s.notify.Notify(events.Event{
		Entity:     entity,
		Action:     action,
		EntityID:   entityID,
		ProjectID:  projectID,
		ActorID:    callerID(caller),
		Data:       data,
		OccurredAt: time.Now().UTC(),
	})
}

// authorize runs the gate and logs denials.
func (s *Service) authorize(ctx context.Context, caller *models.User, projectID string, required models.ProjectRole, op string) error {
	err := s.gate.Authorize(ctx, caller, projectID, required)
	if errs.IsForbidden(err) {
		s.log.Debug("access denied", "op", op, "uid", callerID(caller), "project_id", projectID, "required", required, "err", err)
	}
	return err
}

// viewProject loads a project and checks the caller may read it.
func (s *Service) viewProject(ctx context.Context, caller *models.User, projectID string) (*models.Project, models.ProjectRole, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	role, err := s.gate.CanView(ctx, caller, p)
	if err != nil {
		return nil, "", err
	}
	return p, role, nil
}

func requireCaller(caller *models.User) error {
	if caller == nil {
		return errs.Forbidden("authentication required")
	}
	return nil
}

func requireSystemAdmin(caller *models.User) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsSystemAdmin() {
		return errs.Forbidden("system admin required")
	}
	return nil
}

func callerID(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
