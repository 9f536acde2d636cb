package workflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/workflow"
)

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Notify(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, e := range r.got {
		out[i] = e.Name()
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.got = nil
	r.mu.Unlock()
}

func TestEventsEmittedOnCommit(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, workflow.WithNotifier(rec))
	ctx := context.Background()

	// Fixture setup: five users, one project, two collaborators.
	assert.Equal(t, []string{
		"user.created", "user.created", "user.created", "user.created", "user.created",
		"project.created", "permission.created", "permission.created",
	}, rec.names())
	rec.reset()

	story := f.issue(t, f.member, models.TypeStory, "")
	sub := f.issue(t, f.member, models.TypeSubtask, story.ID)
	_, err := f.svc.UpdateIssue(ctx, f.member, story.ID, workflow.UpdateIssueInput{Title: ptr("renamed")})
	require.NoError(t, err)
	_, err = f.svc.ConvertToIssue(ctx, f.member, sub.ID)
	require.NoError(t, err)
	c, err := f.svc.CreateComment(ctx, f.member, workflow.CreateCommentInput{IssueID: story.ID, Body: "hi"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteComment(ctx, f.member, c.ID))
	require.NoError(t, f.svc.DeleteIssue(ctx, f.owner, sub.ID))

	assert.Equal(t, []string{
		"issue.created", "issue.created", "issue.updated", "issue.updated",
		"comment.created", "comment.deleted", "issue.deleted",
	}, rec.names())

	for _, e := range rec.got {
		assert.Equal(t, f.project.ID, e.ProjectID, e.Name())
		assert.NotEmpty(t, e.EntityID, e.Name())
		assert.NoError(t, e.Validate())
		assert.False(t, e.OccurredAt.IsZero())
	}
	assert.Equal(t, f.member.ID, rec.got[0].ActorID)
	assert.Equal(t, f.owner.ID, rec.got[6].ActorID)
}

func TestNoEventOnFailure(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, workflow.WithNotifier(rec))
	rec.reset()
	ctx := context.Background()

	_, err := f.svc.CreateIssue(ctx, f.viewer, workflow.CreateIssueInput{
		ProjectID: f.project.ID, Title: "nope", Type: models.TypeTask,
	})
	require.Error(t, err)
	_, err = f.svc.CreateProject(ctx, f.owner, workflow.CreateProjectInput{Name: ""})
	require.Error(t, err)
	_, err = f.svc.SetSystemRole(ctx, workflow.Operator, f.admin.ID, models.SystemRoleUser)
	require.Error(t, err, "last admin")

	assert.Empty(t, rec.names())
}
