package cmd

import (
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the work a session would plan without committing it",
	Long: `Run the bookkeeping computation as a dry run.

The data directory is inventoried and the expected artifact set derived
exactly as in a scan, but the journal is neither locked nor written, so
nothing is memoized across runs and no session is recorded.

Example:
  ulftrack plan --study study.yaml
  ulftrack plan --study study.yaml --output plan.jsonl`,
	RunE: runPlan,
}

var (
	planStudyPath string
	planOutput    string
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planStudyPath, "study", "s", "", "Path to study manifest (required)")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Write JSONL records to a file instead of stdout")

	_ = planCmd.MarkFlagRequired("study")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	tr, err := newTracker(planStudyPath)
	if err != nil {
		return err
	}

	res, err := tr.Plan(ctx)
	if err != nil {
		return runExitError(ctx, err)
	}

	w, cleanup, err := createWriter(planOutput, res.SessionID)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	return emitResult(ctx, w, res, time.Since(started))
}
