package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

type memIssues map[string]*models.Issue

func (m memIssues) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	i, ok := m[id]
	if !ok {
		return nil, errs.NotFound("issue", id)
	}
	return i, nil
}

func (m memIssues) CountChildren(_ context.Context, issueID string) (int, error) {
	n := 0
	for _, i := range m {
		if i.ParentID() == issueID {
			n++
		}
	}
	return n, nil
}

func ptr(s string) *string { return &s }

// fixture: story S1 (p1) with subtask ST1, task T1 (p1) without children,
// task OT (p2).
func fixture() memIssues {
	return memIssues{
		"S1":  {ID: "S1", ProjectID: "p1", Type: models.TypeStory},
		"ST1": {ID: "ST1", ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: ptr("S1")},
		"T1":  {ID: "T1", ProjectID: "p1", Type: models.TypeTask},
		"OT":  {ID: "OT", ProjectID: "p2", Type: models.TypeTask},
	}
}

func assertValidation(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err), "expected validation error, got %T: %v", err, err)
	assert.Equal(t, msg, err.Error())
}

func TestValidateCreate(t *testing.T) {
	v := New(fixture())
	ctx := context.Background()

	tests := []struct {
		name string
		p    Proposal
		msg  string
	}{
		{"plain task", Proposal{ProjectID: "p1", Type: models.TypeTask}, ""},
		{"subtask of story", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "S1"}, ""},
		{"subtask without parent", Proposal{ProjectID: "p1", Type: models.TypeSubtask}, MsgSubtaskNeedsParent},
		{"subtask with blank parent", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "  "}, MsgSubtaskNeedsParent},
		{"task with parent", Proposal{ProjectID: "p1", Type: models.TypeTask, ParentIssueID: "S1"}, MsgOnlySubtaskHasParent},
		{"nested subtask", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "ST1"}, MsgNestedSubtask},
		{"cross project parent", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "OT"}, MsgParentOtherProject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCreate(ctx, tt.p)
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			assertValidation(t, err, tt.msg)
		})
	}
}

func TestValidateCreateMissingParent(t *testing.T) {
	err := New(fixture()).ValidateCreate(context.Background(),
		Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "nope"})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, "parent issue not found: nope", err.Error())
}

func TestValidateUpdate(t *testing.T) {
	issues := fixture()
	v := New(issues)
	ctx := context.Background()

	tests := []struct {
		name     string
		existing string
		p        Proposal
		msg      string
	}{
		{"retitle story", "S1", Proposal{ProjectID: "p1", Type: models.TypeStory}, ""},
		{"task becomes subtask", "T1", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "S1"}, ""},
		{"story with subtasks becomes subtask", "S1", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "T1"}, MsgUpdateHasSubtasks},
		{"subtask detached without type change", "ST1", Proposal{ProjectID: "p1", Type: models.TypeSubtask}, MsgDetachSubtask},
		{"subtask detached with type change", "ST1", Proposal{ProjectID: "p1", Type: models.TypeTask}, ""},
		{"self parent", "T1", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "T1"}, MsgOwnParent},
		{"reparent to other project", "ST1", Proposal{ProjectID: "p1", Type: models.TypeSubtask, ParentIssueID: "OT"}, MsgParentOtherProject},
		{"type/parent mismatch", "T1", Proposal{ProjectID: "p1", Type: models.TypeBug, ParentIssueID: "S1"}, MsgOnlySubtaskHasParent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateUpdate(ctx, issues[tt.existing], tt.p)
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			assertValidation(t, err, tt.msg)
		})
	}
}

func TestValidateConvertToSubtask(t *testing.T) {
	issues := fixture()
	v := New(issues)
	ctx := context.Background()

	tests := []struct {
		name   string
		issue  string
		parent string
		msg    string
	}{
		{"task under story", "T1", "S1", ""},
		{"already subtask", "ST1", "T1", MsgAlreadySubtask},
		{"has subtasks", "S1", "T1", MsgConvertHasSubtasks},
		{"parent is subtask", "T1", "ST1", MsgSubtaskAsParent},
		{"parent in other project", "T1", "OT", MsgParentOtherProject},
		{"own parent", "T1", "T1", MsgOwnParent},
		{"blank parent", "T1", "", MsgSubtaskNeedsParent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateConvertToSubtask(ctx, issues[tt.issue], tt.parent)
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			assertValidation(t, err, tt.msg)
		})
	}

	err := v.ValidateConvertToSubtask(ctx, issues["T1"], "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestValidateConvertToIssue(t *testing.T) {
	issues := fixture()
	assert.NoError(t, ValidateConvertToIssue(issues["ST1"]))
	assertValidation(t, ValidateConvertToIssue(issues["T1"]), MsgOnlySubtaskToIssue)
}
