package main

import (
	"errors"
	"fmt"

	"github.com/JuribaDev/juriba-storage/internal/app"
	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/config"
	"github.com/JuribaDev/juriba-storage/internal/reconcile"

	"github.com/spf13/cobra"
)

var errDrift = errors.New("tracker rows and backend payloads disagree")

type reportJSON struct {
	Backend  string   `json:"backend"`
	Trackers int      `json:"trackers"`
	Payloads int      `json:"payloads"`
	Orphaned []string `json:"orphaned"`
	Dangling []string `json:"dangling"`
}

func newReconcileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		backends []string
		strict   bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report payloads without trackers and trackers without payloads",
		Long: "Compares the blob_trackers table with the payloads held by each backend.\n" +
			"Nothing is modified. Defaults to the active STORAGE_TYPE backend.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(backends) == 0 {
				backends = []string{cfg.StorageType()}
			}
			types := make([]blob.StorageType, 0, len(backends))
			for _, b := range backends {
				t, err := blob.ParseStorageType(b)
				if err != nil {
					return err
				}
				types = append(types, t)
			}

			db, err := app.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			job, err := app.NewReconcileJob(cmd.Context(), cfg, db, types)
			if err != nil {
				return err
			}
			reports, err := job.Run(cmd.Context())
			if err != nil {
				return err
			}

			if err := writeReports(cmd, reports, *jsonOutput); err != nil {
				return err
			}

			if strict {
				for _, r := range reports {
					if !r.Consistent() {
						return errDrift
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&backends, "backend", "b", nil, "backends to check (s3, database, local)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any backend disagrees")
	return cmd
}

func writeReports(cmd *cobra.Command, reports []reconcile.Report, jsonOutput bool) error {
	out := cmd.OutOrStdout()

	if jsonOutput {
		payload := make([]reportJSON, 0, len(reports))
		for _, r := range reports {
			payload = append(payload, reportJSON{
				Backend:  string(r.Backend),
				Trackers: r.Trackers,
				Payloads: r.Payloads,
				Orphaned: nonNil(r.Orphaned),
				Dangling: nonNil(r.Dangling),
			})
		}
		return writeJSON(out, payload)
	}

	for _, r := range reports {
		if _, err := fmt.Fprintf(out, "%s: %d trackers, %d payloads, %d orphaned, %d dangling\n",
			r.Backend, r.Trackers, r.Payloads, len(r.Orphaned), len(r.Dangling)); err != nil {
			return err
		}
		for _, id := range r.Orphaned {
			if _, err := fmt.Fprintf(out, "  orphaned payload %s\n", id); err != nil {
				return err
			}
		}
		for _, id := range r.Dangling {
			if _, err := fmt.Fprintf(out, "  dangling tracker %s\n", id); err != nil {
				return err
			}
		}
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
