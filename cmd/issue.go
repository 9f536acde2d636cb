package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskflow/internal/dateparse"
	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/output"
	"github.com/marcus/taskflow/internal/workflow"
)

var issueCmd = &cobra.Command{
	Use:     "issue",
	Aliases: []string{"issues"},
	Short:   "Inspect issues",
	GroupID: "data",
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List a project's issues (project id or key)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetString("updated-since")
		ctx := cmd.Context()

		var cutoff time.Time
		if since != "" {
			t, err := dateparse.Since(since)
			if err != nil {
				return errs.Validation(err.Error())
			}
			cutoff = t
		}
		want := models.NormalizeStatus(status)
		if status != "" && !models.IsValidStatus(want) {
			return errs.Validationf("invalid status %q (valid: backlog, selected, in_progress, done)", status)
		}

		st, svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := resolveProject(ctx, svc, args[0])
		if err != nil {
			return err
		}
		issues, err := svc.ListProjectIssues(ctx, workflow.Operator, p.ID)
		if err != nil {
			return err
		}
		filtered := issues[:0]
		for _, i := range issues {
			if status != "" && i.Status != want {
				continue
			}
			if i.UpdatedAt.Before(cutoff) {
				continue
			}
			filtered = append(filtered, i)
		}
		issues = filtered

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if mode == output.ModeJSON {
			if issues == nil {
				issues = []*models.Issue{}
			}
			return output.JSON(out, issues)
		}
		if len(issues) == 0 {
			cmd.Printf("No issues in %s\n", p.Key)
			return nil
		}
		for _, i := range issues {
			cmd.Println(output.FormatIssueShort(i))
		}
		return nil
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue>",
	Short: "Show an issue with its subtasks and comments (issue id or key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		issue, err := resolveIssue(ctx, svc, args[0])
		if err != nil {
			return err
		}
		subtasks, err := svc.ListSubtasks(ctx, workflow.Operator, issue.ID)
		if err != nil {
			return err
		}
		comments, err := svc.ListComments(ctx, workflow.Operator, issue.ID)
		if err != nil {
			return err
		}

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if mode == output.ModeJSON {
			return output.JSON(out, map[string]any{
				"issue":    issue,
				"subtasks": nonNil(subtasks),
				"comments": nonNil(comments),
			})
		}
		users, err := svc.ListUsers(ctx, workflow.Operator)
		if err != nil {
			return err
		}
		d := output.IssueDetail{
			Names:    make(map[string]string, len(users)),
			Subtasks: subtasks,
			Comments: comments,
		}
		for _, u := range users {
			d.Names[u.ID] = u.Name
		}
		if parentID := issue.ParentID(); parentID != "" {
			if parent, err := svc.GetIssue(ctx, workflow.Operator, parentID); err == nil {
				d.ParentKey = parent.Key
			}
		}
		rendered, err := output.RenderDescription(issue.Description, output.TerminalWidth(0), output.ColorEnabled())
		if err != nil {
			logger.Debug("render description", "issue", issue.Key, "err", err)
		} else {
			d.Description = rendered
		}

		cmd.Print(output.FormatIssueLong(issue, d))
		return nil
	},
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// resolveIssue accepts an issue id or a key such as TFP-12.
func resolveIssue(ctx context.Context, svc *workflow.Service, ref string) (*models.Issue, error) {
	issue, err := svc.GetIssue(ctx, workflow.Operator, ref)
	if err == nil || !errs.IsNotFound(err) {
		return issue, err
	}
	dash := strings.LastIndex(ref, "-")
	if dash <= 0 {
		return nil, err
	}
	p, perr := resolveProject(ctx, svc, ref[:dash])
	if perr != nil {
		return nil, err
	}
	issues, lerr := svc.ListProjectIssues(ctx, workflow.Operator, p.ID)
	if lerr != nil {
		return nil, lerr
	}
	for _, i := range issues {
		if strings.EqualFold(i.Key, ref) {
			return i, nil
		}
	}
	return nil, err
}

func init() {
	issueListCmd.Flags().String("status", "", "only issues with this status")
	issueListCmd.Flags().String("updated-since", "", "only issues updated since (e.g. 3d, 2w, yesterday, 2026-03-01)")

	issueCmd.AddCommand(issueListCmd, issueShowCmd)
	rootCmd.AddCommand(issueCmd)
}
