package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/users"
)

// AccountCreator creates a user account.
type AccountCreator interface {
	Create(ctx context.Context, in users.Input) (users.User, error)
}

func newBootstrapAdminCommand(r *runner) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create a security administrator account",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
			user, err := env.Accounts.Create(cmd.Context(), users.Input{
				Name:     name,
				Email:    email,
				Password: r.viper.GetString("admin-password"),
				Role:     rbac.RoleSecurityAdmin.String(),
			})
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s #%d <%s>\n", user.Role, user.ID, user.Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login e-mail")
	cmd.Flags().String("password", "", "initial password (or ADMIN_PASSWORD)")
	_ = r.viper.BindPFlag("admin-password", cmd.Flags().Lookup("password"))
	return cmd
}
