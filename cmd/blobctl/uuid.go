package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newUUIDCmd(jsonOutput *bool) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "uuid",
		Short: "Generate blob ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be > 0")
			}

			for range count {
				id := uuid.NewString()
				if *jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), map[string]string{"uuid": id}); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ids to generate")
	return cmd
}
