package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/output"
	"github.com/marcus/taskflow/internal/suggest"
	"github.com/marcus/taskflow/internal/workflow"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Manage projects",
	GroupID: "data",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project owned by an existing user",
	Long: `Create a project. The key is derived from the name and the owner becomes
the project's first admin.`,
	Example: `  taskflow project create "TaskFlow Project" --owner ada@example.com --public`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ownerEmail, _ := cmd.Flags().GetString("owner")
		category, _ := cmd.Flags().GetString("category")
		description, _ := cmd.Flags().GetString("description")
		url, _ := cmd.Flags().GetString("url")
		public, _ := cmd.Flags().GetBool("public")
		ctx := cmd.Context()

		st, svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		owner, err := st.GetUserByEmail(ctx, ownerEmail)
		if err != nil {
			return err
		}
		p, err := svc.CreateProject(ctx, owner, workflow.CreateProjectInput{
			Name:        args[0],
			URL:         url,
			Description: description,
			Category:    models.Category(category),
			IsPublic:    public,
		})
		if err != nil {
			return err
		}

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		if mode == output.ModeJSON {
			return output.JSON(cmd.OutOrStdout(), p)
		}
		output.Success(cmd.OutOrStdout(), "Created project %s %q (%s)", p.Key, p.Name, p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	Long:    `List every project, or with --user only those the user can see.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asEmail, _ := cmd.Flags().GetString("user")
		ctx := cmd.Context()

		st, svc, err := openService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		caller := workflow.Operator
		if asEmail != "" {
			if caller, err = st.GetUserByEmail(ctx, asEmail); err != nil {
				return err
			}
		}
		projects, err := svc.ListProjects(ctx, caller)
		if err != nil {
			return err
		}

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if mode == output.ModeJSON {
			if projects == nil {
				projects = []*models.Project{}
			}
			return output.JSON(out, projects)
		}
		if len(projects) == 0 {
			cmd.Println("No projects")
			return nil
		}
		for _, p := range projects {
			var role models.ProjectRole
			if asEmail != "" {
				if _, role, err = svc.GetProject(ctx, caller, p.ID); err != nil {
					return err
				}
			}
			cmd.Println(output.FormatProject(p, role))
			if mode == output.ModeLong && p.Description != "" {
				cmd.Println(output.IndentString(p.Description, 4))
			}
		}
		return nil
	},
}

// resolveProject accepts a project id or key.
func resolveProject(ctx context.Context, svc *workflow.Service, ref string) (*models.Project, error) {
	p, _, err := svc.GetProject(ctx, workflow.Operator, ref)
	if err == nil || !errs.IsNotFound(err) {
		return p, err
	}
	projects, lerr := svc.ListProjects(ctx, workflow.Operator)
	if lerr != nil {
		return nil, lerr
	}
	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		if strings.EqualFold(p.Key, ref) {
			return p, nil
		}
		keys = append(keys, p.Key)
	}
	if hint := suggest.Hint(suggest.Closest(ref, keys)); hint != "" {
		return nil, fmt.Errorf("%w%s", err, hint)
	}
	return nil, err
}

func init() {
	projectCreateCmd.Flags().String("owner", "", "email of the user who becomes project admin (required)")
	projectCreateCmd.Flags().String("category", "software", "software, marketing or business")
	projectCreateCmd.Flags().String("description", "", "project description")
	projectCreateCmd.Flags().String("url", "", "project URL")
	projectCreateCmd.Flags().Bool("public", false, "let anyone view the project")
	_ = projectCreateCmd.MarkFlagRequired("owner")

	projectListCmd.Flags().String("user", "", "only projects visible to this user (email)")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd)
	rootCmd.AddCommand(projectCmd)
}
