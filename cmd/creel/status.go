package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fisheries-data/creel/internal/home"
	"github.com/fisheries-data/creel/internal/output"
	"github.com/fisheries-data/creel/internal/store"
)

var statusRuns int

// statusReport is the rendered shape of `creel status`.
type statusReport struct {
	Home   string            `json:"home" yaml:"home"`
	Counts store.Counts      `json:"counts" yaml:"counts"`
	Runs   []store.IngestRun `json:"runs,omitempty" yaml:"runs,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entity store totals and recent ingest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if !dir.Exists() {
			return fmt.Errorf("home directory %s does not exist; run 'creel init' first", dir.Path())
		}

		st, err := store.Open(dir.DBPath())
		if err != nil {
			return fmt.Errorf("failed to open entity store: %w", err)
		}
		defer st.Close()

		counts, err := st.Counts(cmd.Context())
		if err != nil {
			return err
		}
		runs, err := st.RecentRuns(cmd.Context(), statusRuns)
		if err != nil {
			return err
		}

		return output.Render(statusReport{
			Home:   dir.Path(),
			Counts: counts,
			Runs:   runs,
		})
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent runs to include")
}
