package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/hierarchy"
	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/store"
	"github.com/marcus/taskflow/internal/workflow"
)

type fixture struct {
	svc   *workflow.Service
	store *store.Store

	admin  *models.User // system admin, no project permissions
	owner  *models.User // project admin via creation
	member *models.User
	viewer *models.User
	other  *models.User // no access

	project *models.Project
}

func newFixture(t *testing.T, opts ...workflow.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	opts = append([]workflow.Option{workflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	f := &fixture{svc: workflow.New(st, opts...), store: st}

	mk := func(name string, role models.SystemRole) *models.User {
		u, err := f.svc.CreateUser(ctx, workflow.Operator, workflow.CreateUserInput{
			Name: name, Email: name + "@example.com", SystemRole: role,
		})
		require.NoError(t, err)
		return u
	}
	f.admin = mk("admin", models.SystemRoleAdmin)
	f.owner = mk("owner", "")
	f.member = mk("member", "")
	f.viewer = mk("viewer", "")
	f.other = mk("other", "")

	f.project, err = f.svc.CreateProject(ctx, f.owner, workflow.CreateProjectInput{Name: "TaskFlow Project"})
	require.NoError(t, err)
	_, err = f.svc.AddCollaborator(ctx, f.owner, f.project.ID, f.member.ID, models.RoleMember)
	require.NoError(t, err)
	_, err = f.svc.AddCollaborator(ctx, f.owner, f.project.ID, f.viewer.ID, models.RoleViewer)
	require.NoError(t, err)
	return f
}

func (f *fixture) issue(t *testing.T, caller *models.User, typ models.Type, parentID string) *models.Issue {
	t.Helper()
	i, err := f.svc.CreateIssue(context.Background(), caller, workflow.CreateIssueInput{
		ProjectID: f.project.ID, Title: "work item", Type: typ, ParentIssueID: parentID,
	})
	require.NoError(t, err)
	return i
}

func TestScenarioTaskFlowProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "TFP", f.project.Key)
	assert.EqualValues(t, 0, f.project.IssueCounter)

	first := f.issue(t, f.owner, models.TypeStory, "")
	second := f.issue(t, f.member, models.TypeBug, "")
	assert.Equal(t, "TFP-1", first.Key)
	assert.Equal(t, "TFP-2", second.Key)
	assert.Equal(t, models.StatusBacklog, first.Status)
	assert.Equal(t, models.PriorityMedium, first.Priority)
	assert.Equal(t, f.owner.ID, first.ReporterID)

	err := f.svc.DeleteIssue(ctx, f.member, first.ID)
	require.Error(t, err)
	assert.True(t, errs.IsForbidden(err), "member delete: %v", err)

	_, err = f.svc.GetIssue(ctx, f.member, first.ID)
	require.NoError(t, err, "rejected delete must leave the issue in place")
}

func TestAdminBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	i := f.issue(t, f.admin, models.TypeTask, "")
	_, err := f.svc.UpdateIssue(ctx, f.admin, i.ID, workflow.UpdateIssueInput{Title: ptr("renamed by admin")})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteIssue(ctx, f.admin, i.ID))

	_, err = f.svc.ListPermissions(ctx, f.admin, f.project.ID)
	require.NoError(t, err)
}

func TestRoleGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIssue(ctx, f.viewer, workflow.CreateIssueInput{ProjectID: f.project.ID, Title: "x", Type: models.TypeTask})
	assert.True(t, errs.IsForbidden(err), "viewer create: %v", err)
	assert.Equal(t, "insufficient role", err.Error())

	_, err = f.svc.CreateIssue(ctx, f.other, workflow.CreateIssueInput{ProjectID: f.project.ID, Title: "x", Type: models.TypeTask})
	assert.True(t, errs.IsForbidden(err), "outsider create: %v", err)
	assert.Equal(t, "no project access", err.Error())

	_, err = f.svc.CreateIssue(ctx, nil, workflow.CreateIssueInput{ProjectID: f.project.ID, Title: "x", Type: models.TypeTask})
	assert.True(t, errs.IsForbidden(err), "anonymous create: %v", err)

	_, err = f.svc.UpdateProject(ctx, f.member, f.project.ID, workflow.UpdateProjectInput{Name: ptr("nope")})
	assert.True(t, errs.IsForbidden(err), "member update project: %v", err)

	_, err = f.svc.AddCollaborator(ctx, f.member, f.project.ID, f.other.ID, models.RoleViewer)
	assert.True(t, errs.IsForbidden(err), "member manage permissions: %v", err)

	err = f.svc.DeleteProject(ctx, f.member, f.project.ID)
	assert.True(t, errs.IsForbidden(err), "member delete project: %v", err)
}

func TestConcurrentIssueCreation(t *testing.T) {
	f := newFixture(t)
	const n = 50

	keys := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			issue, err := f.svc.CreateIssue(context.Background(), f.member, workflow.CreateIssueInput{
				ProjectID: f.project.ID, Title: "parallel " + strconv.Itoa(i), Type: models.TypeTask,
			})
			if err != nil {
				return err
			}
			keys[i] = issue.Key
			return nil
		})
	}
	require.NoError(t, g.Wait())

	suffixes := make([]int, 0, n)
	for _, k := range keys {
		require.True(t, strings.HasPrefix(k, "TFP-"), k)
		v, err := strconv.Atoi(strings.TrimPrefix(k, "TFP-"))
		require.NoError(t, err)
		suffixes = append(suffixes, v)
	}
	sort.Ints(suffixes)
	for i, v := range suffixes {
		assert.Equal(t, i+1, v)
	}

	p, err := f.store.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, p.IssueCounter)
}

func TestProjectKeyDisambiguation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateProject(ctx, f.other, workflow.CreateProjectInput{Name: "Task Force"})
	require.NoError(t, err)
	b, err := f.svc.CreateProject(ctx, f.other, workflow.CreateProjectInput{Name: "Task Force"})
	require.NoError(t, err)
	assert.Equal(t, "TF", a.Key)
	assert.Equal(t, "TF1", b.Key)

	_, role, err := f.svc.GetProject(ctx, f.other, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)
}

func TestCreateProjectValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProject(ctx, f.other, workflow.CreateProjectInput{Name: "  "})
	assert.True(t, errs.IsValidation(err), "blank name: %v", err)

	_, err = f.svc.CreateProject(ctx, f.other, workflow.CreateProjectInput{Name: "Ok", Category: "hardware"})
	assert.True(t, errs.IsValidation(err), "bad category: %v", err)

	p, err := f.svc.CreateProject(ctx, f.other, workflow.CreateProjectInput{Name: "Ok", Category: "MARKETING"})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryMarketing, p.Category)
}

func TestSubtaskInvariantsOnCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.issue(t, f.member, models.TypeStory, "")
	sub := f.issue(t, f.member, models.TypeSubtask, story.ID)
	require.NotNil(t, sub.ParentIssueID)
	assert.Equal(t, story.ID, *sub.ParentIssueID)

	otherProject, err := f.svc.CreateProject(ctx, f.member, workflow.CreateProjectInput{Name: "Elsewhere"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     workflow.CreateIssueInput
		reason string
	}{
		{"subtask without parent", workflow.CreateIssueInput{Type: models.TypeSubtask}, hierarchy.MsgSubtaskNeedsParent},
		{"task with parent", workflow.CreateIssueInput{Type: models.TypeTask, ParentIssueID: story.ID}, hierarchy.MsgOnlySubtaskHasParent},
		{"nested subtask", workflow.CreateIssueInput{Type: models.TypeSubtask, ParentIssueID: sub.ID}, hierarchy.MsgNestedSubtask},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			in.ProjectID = f.project.ID
			in.Title = "child"
			_, err := f.svc.CreateIssue(ctx, f.member, in)
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err), "%v", err)
			assert.Equal(t, tc.reason, err.Error())
		})
	}

	t.Run("parent in another project", func(t *testing.T) {
		_, err := f.svc.CreateIssue(ctx, f.member, workflow.CreateIssueInput{
			ProjectID: otherProject.ID, Title: "child", Type: models.TypeSubtask, ParentIssueID: story.ID,
		})
		require.Error(t, err)
		assert.Equal(t, hierarchy.MsgParentOtherProject, err.Error())
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := f.svc.CreateIssue(ctx, f.member, workflow.CreateIssueInput{
			ProjectID: f.project.ID, Title: "child", Type: models.TypeSubtask, ParentIssueID: "nope",
		})
		assert.True(t, errs.IsNotFound(err), "%v", err)
	})

	p, err := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.IssueCounter, "rejected creations must not consume keys")
}

func TestCreateIssueUnknownAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIssue(ctx, f.member, workflow.CreateIssueInput{
		ProjectID: f.project.ID, Title: "assigned", Type: models.TypeTask, AssigneeIDs: []string{f.viewer.ID, "ghost"},
	})
	assert.True(t, errs.IsNotFound(err), "%v", err)

	issues, err := f.svc.ListProjectIssues(ctx, f.member, f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, issues)

	i, err := f.svc.CreateIssue(ctx, f.member, workflow.CreateIssueInput{
		ProjectID: f.project.ID, Title: "assigned", Type: "Bug", Priority: "5", AssigneeIDs: []string{f.viewer.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TypeBug, i.Type)
	assert.Equal(t, models.PriorityHighest, i.Priority)
	assert.Equal(t, []string{f.viewer.ID}, i.AssigneeIDs)
}

func TestCreateIssueShapeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, in := range map[string]workflow.CreateIssueInput{
		"no title":       {Type: models.TypeTask},
		"bad type":       {Title: "x", Type: "epic"},
		"bad status":     {Title: "x", Type: models.TypeTask, Status: "closed"},
		"bad priority":   {Title: "x", Type: models.TypeTask, Priority: "urgent"},
		"negative times": {Title: "x", Type: models.TypeTask, Estimate: -1},
	} {
		t.Run(name, func(t *testing.T) {
			in.ProjectID = f.project.ID
			_, err := f.svc.CreateIssue(ctx, f.member, in)
			assert.True(t, errs.IsValidation(err), "%v", err)
		})
	}
}

func TestUpdateIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.issue(t, f.member, models.TypeStory, "")
	sub := f.issue(t, f.member, models.TypeSubtask, story.ID)

	updated, err := f.svc.UpdateIssue(ctx, f.member, story.ID, workflow.UpdateIssueInput{
		Status: statusPtr("In Progress"), Estimate: ptr(5), AssigneeIDs: &[]string{f.member.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, 5, updated.Estimate)
	assert.Equal(t, []string{f.member.ID}, updated.AssigneeIDs)
	assert.Equal(t, story.Key, updated.Key)

	_, err = f.svc.UpdateIssue(ctx, f.member, story.ID, workflow.UpdateIssueInput{Type: typePtr(models.TypeSubtask), ParentIssueID: ptr(story.ID)})
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgOwnParent, err.Error())

	other := f.issue(t, f.member, models.TypeTask, "")
	_, err = f.svc.UpdateIssue(ctx, f.member, story.ID, workflow.UpdateIssueInput{Type: typePtr(models.TypeSubtask), ParentIssueID: ptr(other.ID)})
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgUpdateHasSubtasks, err.Error())

	_, err = f.svc.UpdateIssue(ctx, f.member, sub.ID, workflow.UpdateIssueInput{ParentIssueID: ptr("")})
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgDetachSubtask, err.Error())

	otherProject, err := f.svc.CreateProject(ctx, f.member, workflow.CreateProjectInput{Name: "Elsewhere"})
	require.NoError(t, err)
	_, err = f.svc.UpdateIssue(ctx, f.member, story.ID, workflow.UpdateIssueInput{ProjectID: otherProject.ID})
	assert.True(t, errs.IsValidation(err), "%v", err)

	_, err = f.svc.UpdateIssue(ctx, f.viewer, story.ID, workflow.UpdateIssueInput{Title: ptr("viewer edit")})
	assert.True(t, errs.IsForbidden(err), "%v", err)

	_, err = f.svc.UpdateIssue(ctx, f.member, "missing", workflow.UpdateIssueInput{})
	assert.True(t, errs.IsNotFound(err), "%v", err)
}

func TestConversionGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.issue(t, f.member, models.TypeStory, "")
	sub := f.issue(t, f.member, models.TypeSubtask, story.ID)
	task := f.issue(t, f.member, models.TypeTask, "")

	_, err := f.svc.ConvertToSubtask(ctx, f.member, sub.ID, task.ID)
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgAlreadySubtask, err.Error())

	_, err = f.svc.ConvertToSubtask(ctx, f.member, story.ID, task.ID)
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgConvertHasSubtasks, err.Error())

	_, err = f.svc.ConvertToSubtask(ctx, f.member, task.ID, sub.ID)
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgSubtaskAsParent, err.Error())

	_, err = f.svc.ConvertToSubtask(ctx, f.member, task.ID, task.ID)
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgOwnParent, err.Error())

	_, err = f.svc.ConvertToIssue(ctx, f.member, task.ID)
	require.Error(t, err)
	assert.Equal(t, hierarchy.MsgOnlySubtaskToIssue, err.Error())

	converted, err := f.svc.ConvertToSubtask(ctx, f.member, task.ID, story.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeSubtask, converted.Type)
	assert.Equal(t, story.ID, converted.ParentID())

	back, err := f.svc.ConvertToIssue(ctx, f.member, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeTask, back.Type)
	assert.Nil(t, back.ParentIssueID)

	_, err = f.svc.ConvertToIssue(ctx, f.viewer, task.ID)
	assert.True(t, errs.IsForbidden(err), "%v", err)
}

func TestDeletePolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("reject", func(t *testing.T) {
		f := newFixture(t)
		story := f.issue(t, f.owner, models.TypeStory, "")
		sub := f.issue(t, f.owner, models.TypeSubtask, story.ID)

		err := f.svc.DeleteIssue(ctx, f.owner, story.ID)
		assert.True(t, errs.IsValidation(err), "%v", err)
		got, err := f.svc.GetIssue(ctx, f.owner, sub.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ParentIssueID)
		assert.Equal(t, story.ID, *got.ParentIssueID)
	})

	t.Run("cascade", func(t *testing.T) {
		f := newFixture(t, workflow.WithDeletePolicy(workflow.DeleteCascade))
		story := f.issue(t, f.owner, models.TypeStory, "")
		sub := f.issue(t, f.owner, models.TypeSubtask, story.ID)

		require.NoError(t, f.svc.DeleteIssue(ctx, f.owner, story.ID))
		_, err := f.svc.GetIssue(ctx, f.owner, sub.ID)
		assert.True(t, errs.IsNotFound(err), "%v", err)
	})

	t.Run("orphan", func(t *testing.T) {
		f := newFixture(t, workflow.WithDeletePolicy(workflow.DeleteOrphan))
		story := f.issue(t, f.owner, models.TypeStory, "")
		sub := f.issue(t, f.owner, models.TypeSubtask, story.ID)

		require.NoError(t, f.svc.DeleteIssue(ctx, f.owner, story.ID))
		got, err := f.svc.GetIssue(ctx, f.owner, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TypeTask, got.Type)
		assert.Nil(t, got.ParentIssueID)
	})
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := workflow.ParseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, workflow.DeleteReject, p)

	p, err = workflow.ParseDeletePolicy("Cascade")
	require.NoError(t, err)
	assert.Equal(t, workflow.DeleteCascade, p)

	_, err = workflow.ParseDeletePolicy("explode")
	assert.Error(t, err)
}

func TestCollaborators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddCollaborator(ctx, f.owner, f.project.ID, f.member.ID, models.RoleViewer)
	assert.True(t, errs.IsConflict(err), "duplicate grant: %v", err)

	_, err = f.svc.AddCollaborator(ctx, f.owner, f.project.ID, f.other.ID, "owner")
	assert.True(t, errs.IsValidation(err), "bad role: %v", err)

	_, err = f.svc.AddCollaborator(ctx, f.owner, f.project.ID, "ghost", models.RoleViewer)
	assert.True(t, errs.IsNotFound(err), "unknown user: %v", err)

	_, err = f.svc.UpdateCollaboratorRole(ctx, f.owner, f.project.ID, f.owner.ID, models.RoleMember)
	assert.True(t, errs.IsConflict(err), "demote last admin: %v", err)

	err = f.svc.RemoveCollaborator(ctx, f.owner, f.project.ID, f.owner.ID)
	assert.True(t, errs.IsConflict(err), "remove last admin: %v", err)

	perm, err := f.svc.UpdateCollaboratorRole(ctx, f.owner, f.project.ID, f.member.ID, "ADMIN")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, perm.Role)

	require.NoError(t, f.svc.RemoveCollaborator(ctx, f.member, f.project.ID, f.owner.ID))

	perms, err := f.svc.ListPermissions(ctx, f.member, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	_, err = f.svc.GetPermission(ctx, f.member, f.project.ID, f.owner.ID)
	assert.True(t, errs.IsNotFound(err), "%v", err)

	_, err = f.svc.ListPermissions(ctx, f.owner, f.project.ID)
	assert.True(t, errs.IsForbidden(err), "removed owner: %v", err)
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	i := f.issue(t, f.member, models.TypeTask, "")

	_, _, err := f.svc.GetProject(ctx, nil, f.project.ID)
	assert.True(t, errs.IsForbidden(err), "anonymous private read: %v", err)
	_, err = f.svc.GetIssue(ctx, f.other, i.ID)
	assert.True(t, errs.IsForbidden(err), "outsider private read: %v", err)

	listed, err := f.svc.ListProjects(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = f.svc.UpdateProject(ctx, f.owner, f.project.ID, workflow.UpdateProjectInput{IsPublic: ptr(true)})
	require.NoError(t, err)

	_, role, err := f.svc.GetProject(ctx, nil, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRole(""), role)

	_, role, err = f.svc.GetProject(ctx, f.other, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, role)

	issues, err := f.svc.ListProjectIssues(ctx, nil, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, issues, 1)

	listed, err = f.svc.ListProjects(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestSearchIssuesFiltersByVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateIssue(ctx, f.member, workflow.CreateIssueInput{ProjectID: f.project.ID, Title: "Fix login", Type: models.TypeBug})
	require.NoError(t, err)

	mine, err := f.svc.CreateProject(ctx, f.other, workflow.CreateProjectInput{Name: "Side Project"})
	require.NoError(t, err)
	_, err = f.svc.CreateIssue(ctx, f.other, workflow.CreateIssueInput{ProjectID: mine.ID, Title: "login flow", Type: models.TypeTask})
	require.NoError(t, err)

	got, err := f.svc.SearchIssues(ctx, f.other, "LOGIN", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ProjectID)

	got, err = f.svc.SearchIssues(ctx, f.admin, "login", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.SearchIssues(ctx, f.other, "login", f.project.ID)
	assert.True(t, errs.IsForbidden(err), "%v", err)

	_, err = f.svc.SearchIssues(ctx, f.other, " ", "")
	assert.True(t, errs.IsValidation(err), "%v", err)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	i := f.issue(t, f.member, models.TypeTask, "")

	_, err := f.svc.CreateComment(ctx, f.viewer, workflow.CreateCommentInput{IssueID: i.ID, Body: "hi"})
	assert.True(t, errs.IsForbidden(err), "viewer comment: %v", err)

	c, err := f.svc.CreateComment(ctx, f.member, workflow.CreateCommentInput{IssueID: i.ID, Body: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, f.member.ID, c.UserID)

	_, err = f.svc.CreateComment(ctx, f.member, workflow.CreateCommentInput{IssueID: i.ID, Body: "   "})
	assert.True(t, errs.IsValidation(err), "%v", err)

	_, err = f.svc.UpdateComment(ctx, f.viewer, c.ID, "hijack")
	require.Error(t, err)
	assert.True(t, errs.IsForbidden(err))
	assert.Equal(t, "only comment author or project admin can modify this comment", err.Error())

	updated, err := f.svc.UpdateComment(ctx, f.member, c.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Body)

	_, err = f.svc.UpdateComment(ctx, f.owner, c.ID, "moderated")
	require.NoError(t, err, "project admin may edit any comment")

	list, err := f.svc.ListComments(ctx, f.viewer, i.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "moderated", list[0].Body)

	require.NoError(t, f.svc.DeleteComment(ctx, f.admin, c.ID))
	err = f.svc.DeleteComment(ctx, f.member, c.ID)
	assert.True(t, errs.IsNotFound(err), "%v", err)
}

func TestUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, f.member, workflow.CreateUserInput{Name: "x", Email: "x@example.com"})
	assert.True(t, errs.IsForbidden(err), "%v", err)

	_, err = f.svc.CreateUser(ctx, f.admin, workflow.CreateUserInput{Name: "x", Email: "not-an-email"})
	assert.True(t, errs.IsValidation(err), "%v", err)

	_, err = f.svc.CreateUser(ctx, f.admin, workflow.CreateUserInput{Name: "dup", Email: "MEMBER@example.com"})
	assert.True(t, errs.IsConflict(err), "%v", err)

	_, err = f.svc.SetSystemRole(ctx, f.admin, f.admin.ID, models.SystemRoleUser)
	assert.True(t, errs.IsConflict(err), "last admin: %v", err)

	promoted, err := f.svc.SetSystemRole(ctx, f.admin, f.member.ID, "ADMIN")
	require.NoError(t, err)
	assert.True(t, promoted.IsSystemAdmin())

	_, err = f.svc.SetSystemRole(ctx, f.viewer, f.viewer.ID, models.SystemRoleAdmin)
	assert.True(t, errs.IsForbidden(err), "%v", err)

	users, err := f.svc.ListUsers(ctx, f.viewer)
	require.NoError(t, err)
	assert.Len(t, users, 5)

	_, err = f.svc.ListUsers(ctx, nil)
	assert.True(t, errs.IsForbidden(err), "%v", err)
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	i := f.issue(t, f.member, models.TypeTask, "")

	require.NoError(t, f.svc.DeleteProject(ctx, f.owner, f.project.ID))
	_, err := f.store.GetIssue(ctx, i.ID)
	assert.True(t, errs.IsNotFound(err), "%v", err)

	err = f.svc.DeleteProject(ctx, f.owner, f.project.ID)
	assert.True(t, errs.IsNotFound(err), "%v", err)
}

func ptr[T any](v T) *T { return &v }

func statusPtr(s string) *models.Status { v := models.Status(s); return &v }

func typePtr(t models.Type) *models.Type { return &t }
