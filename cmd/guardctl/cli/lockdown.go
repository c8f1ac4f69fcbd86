package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// LockdownControl reads and toggles the lockdown flag.
type LockdownControl interface {
	Active(ctx context.Context) bool
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

func newLockdownCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lockdown",
		Short: "Inspect or toggle the system lockdown",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Print whether lockdown is active",
			Args:  cobra.NoArgs,
			RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
				state := "inactive"
				if env.Lockdown.Active(cmd.Context()) {
					state = "active"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lockdown: %s\n", state)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "on",
			Short: "Activate lockdown",
			Args:  cobra.NoArgs,
			RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
				if err := env.Lockdown.Activate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "lockdown activated")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "off",
			Short: "Deactivate lockdown",
			Args:  cobra.NoArgs,
			RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
				if err := env.Lockdown.Deactivate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "lockdown deactivated")
				return nil
			}),
		},
	)
	return cmd
}
