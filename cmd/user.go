package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/output"
	"github.com/marcus/taskflow/internal/workflow"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "Manage users",
	GroupID: "data",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user",
	Example: `  taskflow user create --name "Ada Lovelace" --email ada@example.com
  taskflow user create --name Root --email root@example.com --admin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		avatar, _ := cmd.Flags().GetString("avatar-url")
		admin, _ := cmd.Flags().GetBool("admin")

		in := workflow.CreateUserInput{Name: name, Email: email, AvatarURL: avatar}
		if admin {
			in.SystemRole = models.SystemRoleAdmin
		}

		st, svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := svc.CreateUser(cmd.Context(), workflow.Operator, in)
		if err != nil {
			return err
		}

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		if mode == output.ModeJSON {
			return output.JSON(cmd.OutOrStdout(), u)
		}
		output.Success(cmd.OutOrStdout(), "Created user %s (%s)", u.Email, u.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		users, err := svc.ListUsers(cmd.Context(), workflow.Operator)
		if err != nil {
			return err
		}

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if mode == output.ModeJSON {
			if users == nil {
				users = []*models.User{}
			}
			return output.JSON(out, users)
		}
		if len(users) == 0 {
			cmd.Println("No users")
			return nil
		}
		for _, u := range users {
			cmd.Println(output.FormatUser(u))
		}
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("name", "", "display name (required)")
	userCreateCmd.Flags().String("email", "", "email address (required)")
	userCreateCmd.Flags().String("avatar-url", "", "avatar image URL")
	userCreateCmd.Flags().Bool("admin", false, "grant the system admin role")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userCreateCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}
