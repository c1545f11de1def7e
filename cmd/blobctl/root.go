package main

import (
	"github.com/JuribaDev/juriba-storage/internal/config"

	"github.com/spf13/cobra"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:           "blobctl",
		Short:         "Operator tooling for the blob storage gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newMigrateCmd(cfg),
		newReconcileCmd(cfg, &jsonOutput),
		newUUIDCmd(&jsonOutput),
	)

	return cmd
}
