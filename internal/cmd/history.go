package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/journal"
	"github.com/armlab/ulftrack/pkg/manifest"
)

// journalPath locates a study's journal from its manifest.
func journalPath(m *manifest.Manifest) string {
	return filepath.Join(m.Study.DataDir, m.Study.OutputDir, journal.Filename)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the sessions recorded in a study's journal",
	Long: `List every bookkeeping session committed to the study journal,
oldest first, as JSONL.

Example:
  ulftrack history --study study.yaml
  ulftrack history --study study.yaml --detail`,
	RunE: runHistory,
}

var (
	historyStudyPath string
	historyDetail    bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyStudyPath, "study", "s", "", "Path to study manifest (required)")
	historyCmd.Flags().BoolVar(&historyDetail, "detail", false, "Include the full per-subject work plan of each session")

	_ = historyCmd.MarkFlagRequired("study")
}

// historyRecord is one JSONL line of history output.
type historyRecord struct {
	Key         string           `json:"key"`
	AnalysisKey string           `json:"analysis_key,omitempty"`
	Params      analysis.Params  `json:"analysis_params"`
	Subjects    int              `json:"subjects"`
	Session     *journal.Session `json:"session,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(historyStudyPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid study manifest", err)
	}

	path := journalPath(m)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return exitError(foundry.ExitFileNotFound, "No journal found; run a scan first", err)
	}

	j, err := journal.Inspect(path)
	if err != nil {
		if errors.Is(err, journal.ErrCorrupt) {
			return exitError(foundry.ExitFileReadError, "Corrupt journal", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read journal", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, key := range j.SessionKeys() {
		sess, _ := j.SessionAt(key)
		rec := historyRecord{
			Key:         key,
			AnalysisKey: sess.Key,
			Params:      sess.Params,
			Subjects:    len(sess.Subjects),
		}
		if historyDetail {
			s := sess
			rec.Session = &s
		}
		if err := enc.Encode(rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write record", err)
		}
	}
	return nil
}
