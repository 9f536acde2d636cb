package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/workflow"
)

const storeScopeName = "github.com/marcus/taskflow/store"

// InstrumentedStore wraps workflow.Store with OTel tracing and metrics.
// Every method gets a span and is counted in taskflow.store.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  workflow.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ workflow.Store = (*InstrumentedStore)(nil)

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s workflow.Store) workflow.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s workflow.Store) *InstrumentedStore {
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("taskflow.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("taskflow.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("taskflow.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storeScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Users ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.user.id", id)}
	ctx, span, t := s.op(ctx, "GetUser", attrs...)
	v, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span, t := s.op(ctx, "GetUserByEmail")
	v, err := s.inner.GetUserByEmail(ctx, email)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, span, t := s.op(ctx, "CreateUser")
	err := s.inner.CreateUser(ctx, u)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	ctx, span, t := s.op(ctx, "ListUsers")
	v, err := s.inner.ListUsers(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) SetSystemRole(ctx context.Context, userID string, role models.SystemRole) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.user.id", userID), attribute.String("taskflow.role", string(role))}
	ctx, span, t := s.op(ctx, "SetSystemRole", attrs...)
	err := s.inner.SetSystemRole(ctx, userID, role)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Projects ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", id)}
	ctx, span, t := s.op(ctx, "GetProject", attrs...)
	v, err := s.inner.GetProject(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ProjectKeyExists(ctx context.Context, key string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.key", key)}
	ctx, span, t := s.op(ctx, "ProjectKeyExists", attrs...)
	v, err := s.inner.ProjectKeyExists(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) CreateProject(ctx context.Context, p *models.Project, ownerUserID string) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.key", p.Key)}
	ctx, span, t := s.op(ctx, "CreateProject", attrs...)
	err := s.inner.CreateProject(ctx, p, ownerUserID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateProject(ctx context.Context, p *models.Project) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", p.ID)}
	ctx, span, t := s.op(ctx, "UpdateProject", attrs...)
	err := s.inner.UpdateProject(ctx, p)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteProject(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", id)}
	ctx, span, t := s.op(ctx, "DeleteProject", attrs...)
	err := s.inner.DeleteProject(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListProjects(ctx context.Context, f models.ProjectFilter) ([]*models.Project, error) {
	attrs := []attribute.KeyValue{attribute.Bool("taskflow.filter.all", f.All)}
	ctx, span, t := s.op(ctx, "ListProjects", attrs...)
	v, err := s.inner.ListProjects(ctx, f)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) IncrementIssueCounter(ctx context.Context, projectID string) (*models.Project, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID)}
	ctx, span, t := s.op(ctx, "IncrementIssueCounter", attrs...)
	v, err := s.inner.IncrementIssueCounter(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Permissions ───────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetPermission(ctx context.Context, userID, projectID string) (*models.Permission, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID)}
	ctx, span, t := s.op(ctx, "GetPermission", attrs...)
	v, err := s.inner.GetPermission(ctx, userID, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SavePermission(ctx context.Context, p *models.Permission) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", p.ProjectID), attribute.String("taskflow.role", string(p.Role))}
	ctx, span, t := s.op(ctx, "SavePermission", attrs...)
	err := s.inner.SavePermission(ctx, p)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdatePermissionRole(ctx context.Context, userID, projectID string, role models.ProjectRole) (*models.Permission, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID), attribute.String("taskflow.role", string(role))}
	ctx, span, t := s.op(ctx, "UpdatePermissionRole", attrs...)
	v, err := s.inner.UpdatePermissionRole(ctx, userID, projectID, role)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeletePermission(ctx context.Context, userID, projectID string) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID)}
	ctx, span, t := s.op(ctx, "DeletePermission", attrs...)
	err := s.inner.DeletePermission(ctx, userID, projectID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListPermissions(ctx context.Context, projectID string) ([]*models.Permission, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID)}
	ctx, span, t := s.op(ctx, "ListPermissions", attrs...)
	v, err := s.inner.ListPermissions(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Issues ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) CreateIssue(ctx context.Context, i *models.Issue, assigneeIDs []string) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.type", string(i.Type)), attribute.String("taskflow.project.id", i.ProjectID)}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	err := s.inner.CreateIssue(ctx, i, assigneeIDs)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateIssue(ctx context.Context, i *models.Issue, assigneeIDs *[]string) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", i.ID)}
	ctx, span, t := s.op(ctx, "UpdateIssue", attrs...)
	err := s.inner.UpdateIssue(ctx, i, assigneeIDs)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteIssue(ctx context.Context, id string, policy models.SubtaskPolicy) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", id), attribute.String("taskflow.subtask_policy", string(policy))}
	ctx, span, t := s.op(ctx, "DeleteIssue", attrs...)
	v, err := s.inner.DeleteIssue(ctx, id, policy)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) CountChildren(ctx context.Context, parentID string) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", parentID)}
	ctx, span, t := s.op(ctx, "CountChildren", attrs...)
	v, err := s.inner.CountChildren(ctx, parentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListChildren(ctx context.Context, parentID string) ([]*models.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", parentID)}
	ctx, span, t := s.op(ctx, "ListChildren", attrs...)
	v, err := s.inner.ListChildren(ctx, parentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListIssues(ctx context.Context, projectID string) ([]*models.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID)}
	ctx, span, t := s.op(ctx, "ListIssues", attrs...)
	v, err := s.inner.ListIssues(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SearchIssues(ctx context.Context, term, projectID string) ([]*models.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.project.id", projectID)}
	ctx, span, t := s.op(ctx, "SearchIssues", attrs...)
	v, err := s.inner.SearchIssues(ctx, term, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Comments ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	ctx, span, t := s.op(ctx, "GetComment")
	v, err := s.inner.GetComment(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CreateComment(ctx context.Context, c *models.Comment) error {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", c.IssueID)}
	ctx, span, t := s.op(ctx, "CreateComment", attrs...)
	err := s.inner.CreateComment(ctx, c)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateComment(ctx context.Context, c *models.Comment) error {
	ctx, span, t := s.op(ctx, "UpdateComment")
	err := s.inner.UpdateComment(ctx, c)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) DeleteComment(ctx context.Context, id string) error {
	ctx, span, t := s.op(ctx, "DeleteComment")
	err := s.inner.DeleteComment(ctx, id)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) ListComments(ctx context.Context, issueID string) ([]*models.Comment, error) {
	attrs := []attribute.KeyValue{attribute.String("taskflow.issue.id", issueID)}
	ctx, span, t := s.op(ctx, "ListComments", attrs...)
	v, err := s.inner.ListComments(ctx, issueID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}
