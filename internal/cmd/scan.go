package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/armlab/ulftrack/internal/observability"
	"github.com/armlab/ulftrack/pkg/inventory"
	"github.com/armlab/ulftrack/pkg/journal"
	"github.com/armlab/ulftrack/pkg/manifest"
	"github.com/armlab/ulftrack/pkg/output"
	"github.com/armlab/ulftrack/pkg/plan"
	"github.com/armlab/ulftrack/pkg/tracker"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a bookkeeping session from a study manifest",
	Long: `Run a full bookkeeping session as defined in a YAML or JSON study manifest.

The session inventories every subject's sensor exports, resolves
overlapping recordings, derives the expected artifact set, and commits
the result to the study journal. Work items stream to stdout as JSONL.

Example:
  ulftrack scan --study study.yaml
  ulftrack scan --study study.yaml --output session.jsonl`,
	RunE: runScan,
}

var (
	scanStudyPath string
	scanOutput    string
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanStudyPath, "study", "s", "", "Path to study manifest (required)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Write JSONL records to a file instead of stdout")

	_ = scanCmd.MarkFlagRequired("study")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	tr, err := newTracker(scanStudyPath)
	if err != nil {
		return err
	}

	res, err := tr.Run(ctx)
	if err != nil {
		return runExitError(ctx, err)
	}

	w, cleanup, err := createWriter(scanOutput, res.SessionID)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	return emitResult(ctx, w, res, time.Since(started))
}

// newTracker loads the manifest at path and assembles a tracker from it.
func newTracker(path string) (*tracker.Tracker, error) {
	m, err := manifest.Load(path)
	if err != nil {
		observability.CLILogger.Error("Failed to load study manifest",
			zap.String("path", path),
			zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid study manifest", err)
	}

	observability.CLILogger.Debug("Loaded study manifest",
		zap.String("path", path),
		zap.String("data_dir", m.Study.DataDir),
		zap.Strings("channels", m.Sensor.Channels))

	cfg, err := trackerConfig(m)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid study manifest", err)
	}

	tr, err := tracker.New(cfg, inventory.NewCSVReader(),
		tracker.WithLogger(observability.CLILogger))
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid study configuration", err)
	}
	return tr, nil
}

// trackerConfig maps a validated manifest onto a tracker configuration.
func trackerConfig(m *manifest.Manifest) (tracker.Config, error) {
	lockTimeout, err := time.ParseDuration(m.Scan.LockTimeout)
	if err != nil {
		return tracker.Config{}, fmt.Errorf("invalid scan.lock_timeout: %w", err)
	}

	return tracker.Config{
		DataDir:   m.Study.DataDir,
		OutputDir: m.Study.OutputDir,
		Extension: m.Sensor.Extension,
		Channels:  m.Channels(),
		Params:    m.Params(),
		Scan: inventory.Config{
			Concurrency: m.Scan.Concurrency,
			RateLimit:   m.Scan.RateLimit,
		},
		LockTimeout: lockTimeout,
	}, nil
}

// runExitError maps tracker failures to exit-coded errors.
func runExitError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, journal.ErrCorrupt):
		return exitError(foundry.ExitFileReadError, "Corrupt journal", err)
	case errors.Is(err, journal.ErrLockTimeout):
		return exitError(foundry.ExitExternalServiceUnavailable, "Journal is locked by another process", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return exitError(foundry.ExitSignalInt, "Bookkeeping cancelled", err)
	default:
		return exitError(foundry.ExitFileWriteError, "Bookkeeping run failed", err)
	}
}

// createWriter opens the JSONL output destination.
//
// Returns the writer, a cleanup function, and any error.
func createWriter(dest, sessionID string) (output.Writer, func(), error) {
	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, sessionID)
		return w, func() { _ = w.Close() }, nil
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", dest, err)
	}

	w := output.NewJSONLWriter(f, sessionID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

// emitResult streams a run's work tree, log, and summary as JSONL.
func emitResult(ctx context.Context, w output.Writer, res *tracker.Result, elapsed time.Duration) error {
	artifacts := 0
	for _, sw := range res.Work {
		for _, dw := range sw.Days {
			for _, item := range dw.Items {
				if err := w.WriteWorkItem(ctx, workItemRecord(sw.Subject, item, dw.Day)); err != nil {
					return emitError(err)
				}
				artifacts++
			}
		}
		for _, item := range sw.Summary {
			if err := w.WriteWorkItem(ctx, workItemRecord(sw.Subject, item, time.Time{})); err != nil {
				return emitError(err)
			}
			artifacts++
		}
	}

	for _, entry := range res.Log {
		if err := w.WriteLogEntry(ctx, &output.LogEntryRecord{Entry: entry}); err != nil {
			return emitError(err)
		}
	}

	sum := &output.SummaryRecord{
		AnalysisKey:   res.Key,
		Subjects:      len(res.Work),
		Artifacts:     artifacts,
		Pending:       len(res.Pending()),
		LogEntries:    len(res.Log),
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
		Journal:       res.JournalPath,
	}
	if err := w.WriteSummary(ctx, sum); err != nil {
		return emitError(err)
	}

	observability.CLILogger.Info("Bookkeeping completed",
		zap.String("session_id", res.SessionID),
		zap.Int("subjects", sum.Subjects),
		zap.Int("pending", sum.Pending),
		zap.Duration("duration", elapsed))
	return nil
}

func workItemRecord(subject string, item plan.WorkItem, day time.Time) *output.WorkItemRecord {
	rec := &output.WorkItemRecord{
		Subject:    subject,
		Path:       item.Artifact.Path,
		Kind:       string(item.Artifact.Kind),
		NeedsBuild: item.NeedsBuild,
	}
	if !day.IsZero() {
		rec.Day = day.Format("2006-01-02")
	}
	for _, src := range item.Sources {
		rec.Sources = append(rec.Sources, src.Path)
	}
	return rec
}

func emitError(err error) error {
	if errors.Is(err, context.Canceled) {
		return exitError(foundry.ExitSignalInt, "Output cancelled", err)
	}
	return exitError(foundry.ExitFileWriteError, "Failed to write record", err)
}
