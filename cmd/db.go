package cmd

import (
	"fmt"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/store/postgres"
	"github.com/spf13/cobra"
)

func dbCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "manage the relayer database",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		migrateCmd(ctx),
	)
	return cmd
}

func migrateCmd(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.MigrateUp), string(postgres.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := postgres.MigrateUp
			if len(args) == 1 {
				direction = postgres.MigrateDirection(args[0])
			}
			if ctx.Config.Database.Driver != config.DatabaseDriverPostgres {
				return fmt.Errorf("database driver %q has no migrations", ctx.Config.Database.Driver)
			}

			st, err := postgres.Open(cmd.Context(), ctx.Config.Database.URL)
			if err != nil {
				return err
			}
			defer st.Close()
			return postgres.Migrate(st.DB(), direction)
		},
	}
}
