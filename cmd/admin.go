package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/output"
	"github.com/marcus/taskflow/internal/workflow"
)

var adminCmd = &cobra.Command{
	Use:     "admin",
	Short:   "Manage system admins and API keys",
	GroupID: "data",
}

func setRoleCmd(use, short string, role models.SystemRole, verb string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			ctx := cmd.Context()

			st, svc, err := openService(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			u, err := st.GetUserByEmail(ctx, email)
			if err != nil {
				return err
			}
			if _, err := svc.SetSystemRole(ctx, workflow.Operator, u.ID, role); err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "%s admin %s %s", verb, direction(role), u.Email)
			return nil
		},
	}
	c.Flags().String("email", "", "user email address (required)")
	_ = c.MarkFlagRequired("email")
	return c
}

func direction(role models.SystemRole) string {
	if role == models.SystemRoleAdmin {
		return "to"
	}
	return "from"
}

var adminCreateKeyCmd = &cobra.Command{
	Use:   "create-key",
	Short: "Create an API key for a user",
	Long: `Create an API key for a user. The key is printed once and only its hash is
stored; keep it somewhere safe.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		days, _ := cmd.Flags().GetInt("expires-days")
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}

		var expiresAt *time.Time
		if days > 0 {
			t := time.Now().UTC().AddDate(0, 0, days)
			expiresAt = &t
		}
		plaintext, key, err := st.GenerateAPIKey(ctx, u.ID, name, expiresAt)
		if err != nil {
			return err
		}

		mode, err := outputMode(cmd)
		if err != nil {
			return err
		}
		if mode == output.ModeJSON {
			return output.JSON(cmd.OutOrStdout(), map[string]any{"api_key": key, "key": plaintext})
		}
		output.Success(cmd.OutOrStdout(), "Created key %s for %s", key.ID, u.Email)
		cmd.Println(plaintext)
		if !u.IsSystemAdmin() {
			output.Warning(cmd.ErrOrStderr(), "%s is not a system admin", u.Email)
		}
		return nil
	},
}

func init() {
	adminCreateKeyCmd.Flags().String("email", "", "user email address (required)")
	adminCreateKeyCmd.Flags().String("name", "cli", "key name")
	adminCreateKeyCmd.Flags().Int("expires-days", 0, "expire the key after N days (0 = never)")
	_ = adminCreateKeyCmd.MarkFlagRequired("email")

	adminCmd.AddCommand(
		setRoleCmd("grant", "Grant the system admin role to a user", models.SystemRoleAdmin, "Granted"),
		setRoleCmd("revoke", "Revoke the system admin role from a user", models.SystemRoleUser, "Revoked"),
		adminCreateKeyCmd,
	)
	rootCmd.AddCommand(adminCmd)
}
