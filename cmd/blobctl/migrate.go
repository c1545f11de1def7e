package main

import (
	"fmt"

	"github.com/JuribaDev/juriba-storage/internal/app"
	"github.com/JuribaDev/juriba-storage/internal/config"

	"github.com/spf13/cobra"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", db.Dialect)
			return err
		},
	}
}
