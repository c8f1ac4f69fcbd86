package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Migrator applies pending schema migrations and returns their versions.
type Migrator interface {
	Migrate(ctx context.Context) ([]string, error)
}

// MigratorFunc adapts a function to Migrator.
type MigratorFunc func(ctx context.Context) ([]string, error)

// Migrate calls f.
func (f MigratorFunc) Migrate(ctx context.Context) ([]string, error) { return f(ctx) }

func newMigrateCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
			applied, err := env.Migrator.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(out, "applied %s\n", version)
			}
			return nil
		}),
	}
}
