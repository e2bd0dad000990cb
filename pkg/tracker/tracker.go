// Package tracker orchestrates one bookkeeping run over a data
// directory: journal load, per-subject file inventory, overlap
// resolution, expected-artifact planning, staleness resolution, and
// the journal commit.
//
// The tracker never executes the pipeline itself; the resolved work
// tree is handed to the external executor collaborator, whose success
// the tracker does not depend on. A run is idempotent: killed and
// retried, it re-derives everything except history already committed.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/dedup"
	"github.com/armlab/ulftrack/pkg/inventory"
	"github.com/armlab/ulftrack/pkg/journal"
	"github.com/armlab/ulftrack/pkg/plan"
	"github.com/armlab/ulftrack/pkg/timerange"
)

const component = "Tracker"

// Executor is the external pipeline-executor collaborator. Only work
// items with NeedsBuild set are meaningful to it.
type Executor interface {
	Execute(ctx context.Context, work []plan.SubjectWork) error
}

// Config configures one tracker run.
type Config struct {
	// DataDir is the source data root; each immediate subdirectory
	// (except OutputDir) is one subject.
	DataDir string

	// OutputDir is the derived-data subdirectory name under DataDir.
	// Default: "ulfout".
	OutputDir string

	// Extension is the artifact file extension. Default: "csv".
	Extension string

	// Channels are the configured sensor placements to inventory.
	Channels []inventory.Channel

	// Params are the analysis parameters keying all artifacts.
	Params analysis.Params

	// Scan configures reader concurrency and rate limiting.
	Scan inventory.Config

	// LockTimeout bounds the wait for the journal lock.
	// Default: 30s.
	LockTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "ulfout"
	}
	if c.Extension == "" {
		c.Extension = "csv"
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 30 * time.Second
	}
}

func (c Config) validate() error {
	if c.DataDir == "" {
		return errors.New("data directory is required")
	}
	if len(c.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	return c.Params.Validate()
}

// Result is the outcome of one run.
type Result struct {
	// SessionID correlates log and output records for this run.
	SessionID string

	// StartedAt is the session timestamp keying the journal record.
	StartedAt time.Time

	// Params are the effective (window-merged) analysis parameters.
	Params analysis.Params

	// Key is the canonical digest of Params, recorded with the session
	// and echoed in output so artifacts correlate to their parameter
	// version.
	Key string

	// Work is the full resolved work tree, one entry per subject
	// with data, in subject order.
	Work []plan.SubjectWork

	// Log is the accumulated run log.
	Log []string

	// JournalPath is where the session was committed (empty on a
	// dry run).
	JournalPath string
}

// Pending returns every work item across subjects that needs building.
func (r *Result) Pending() []plan.WorkItem {
	var out []plan.WorkItem
	for _, sw := range r.Work {
		out = append(out, sw.Pending()...)
	}
	return out
}

// Tracker runs the bookkeeping pipeline. Create one per run
// configuration; Run may be invoked repeatedly.
type Tracker struct {
	cfg      Config
	reader   inventory.RangeReader
	logger   *zap.Logger
	executor Executor
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithExecutor hands each committed run's work tree to the given
// pipeline executor.
func WithExecutor(e Executor) Option {
	return func(t *Tracker) { t.executor = e }
}

// New creates a Tracker.
func New(cfg Config, reader inventory.RangeReader, opts ...Option) (*Tracker, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, errors.New("a sensor range reader is required")
	}

	t := &Tracker{cfg: cfg, reader: reader, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// JournalPath returns the journal location for this configuration.
func (t *Tracker) JournalPath() string {
	return filepath.Join(t.cfg.DataDir, t.cfg.OutputDir, journal.Filename)
}

// Run executes a full session: exclusive journal lock, load, scan,
// resolve, commit, and optional executor hand-off.
func (t *Tracker) Run(ctx context.Context) (*Result, error) {
	lock, err := journal.AcquireLock(t.JournalPath(), t.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lock.Release()
	}()

	res, j, err := t.compute(ctx, false)
	if err != nil {
		return nil, err
	}

	sess, err := journal.NewSession(res.Params, res.Work)
	if err != nil {
		return nil, err
	}
	j.Append(res.StartedAt, sess)
	if err := j.Save(); err != nil {
		return nil, err
	}
	res.JournalPath = t.JournalPath()

	if t.executor != nil {
		if err := t.executor.Execute(ctx, res.Work); err != nil {
			// Next run retries whatever did not get built.
			rl := &RunLog{}
			rl.Warning(component, WarnExecutorFailed, "pipeline executor: %v", err)
			res.Log = append(res.Log, rl.Entries()...)
		}
	}

	return res, nil
}

// Plan executes a dry run: same computation, but the journal is not
// locked, written, or even created, so newly read file times are not
// memoized across runs.
func (t *Tracker) Plan(ctx context.Context) (*Result, error) {
	res, _, err := t.compute(ctx, true)
	return res, err
}

func (t *Tracker) compute(ctx context.Context, dry bool) (*Result, *journal.Journal, error) {
	open := journal.Load
	if dry {
		open = journal.Inspect
	}
	j, err := open(t.JournalPath())
	if err != nil {
		return nil, nil, err
	}

	res := &Result{
		SessionID: uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Params:    j.MergedParams(t.cfg.Params),
	}
	res.Key, err = res.Params.Key()
	if err != nil {
		return nil, nil, err
	}
	rl := &RunLog{}

	subjects, err := t.listSubjects()
	if err != nil {
		return nil, nil, err
	}
	t.logger.Info("Bookkeeping started",
		zap.String("session_id", res.SessionID),
		zap.String("data_dir", t.cfg.DataDir),
		zap.Int("subjects", len(subjects)))

	scanner := inventory.NewScanner(t.reader, j, t.cfg.Scan, t.logger)
	planner := plan.Planner{
		OutputRoot: filepath.Join(t.cfg.DataDir, t.cfg.OutputDir),
		Ext:        t.cfg.Extension,
	}

	for _, subject := range subjects {
		work, ok := t.processSubject(ctx, subject, scanner, planner, res.Params, rl)
		if !ok {
			continue
		}
		if len(work.Days) > 0 || len(work.Summary) > 0 {
			res.Work = append(res.Work, work)
		}
	}

	res.Log = rl.Entries()
	return res, j, nil
}

// processSubject runs inventory, dedup, planning, and staleness for
// one subject. Failures are logged and isolate the subject; the run
// continues with the rest.
func (t *Tracker) processSubject(ctx context.Context, subject string, scanner *inventory.Scanner,
	planner plan.Planner, params analysis.Params, rl *RunLog) (plan.SubjectWork, bool) {

	subjDir := filepath.Join(t.cfg.DataDir, subject)
	discovered, err := scanner.Scan(ctx, subjDir, t.cfg.Channels)
	if err != nil {
		rl.Error(component, scanErrorType(err), "subject %q: %v", subject, err)
		t.logger.Warn("Subject skipped",
			zap.String("subject", subject),
			zap.Error(err))
		return plan.SubjectWork{}, false
	}

	kept := make(map[inventory.ChannelID][]inventory.SourceFile, len(discovered))
	for _, ch := range t.cfg.Channels {
		resolved, err := dedup.Resolve(discovered[ch.ID])
		if err != nil {
			rl.Error(component, ErrInvalidTimeRange, "subject %q channel %s: %v", subject, ch.ID, err)
			return plan.SubjectWork{}, false
		}
		for _, c := range resolved.Conflicts {
			names := make([]string, 0, 1+len(c.With))
			names = append(names, fmt.Sprintf("%q", c.Path))
			for _, w := range c.With {
				names = append(names, fmt.Sprintf("%q", w))
			}
			rl.Error(component, ErrDuplicateTimestamps,
				"%s have overlapping timestamps.", strings.Join(names, ", "))
		}
		for _, p := range resolved.Discarded {
			rl.Warning(component, WarnIgnoringFile, "%q will not be processed!", p)
		}
		kept[ch.ID] = resolved.Kept()
	}

	sp := planner.Plan(subject, kept, params)
	return plan.Resolve(sp), true
}

func scanErrorType(err error) ErrorType {
	switch {
	case errors.Is(err, inventory.ErrUnreadable):
		return ErrUnreadableFile
	case errors.Is(err, timerange.ErrInverted):
		return ErrInvalidTimeRange
	default:
		return ErrSubjectFailed
	}
}

// listSubjects returns the sorted subject directories under the data
// dir, excluding the output directory and hidden entries.
func (t *Tracker) listSubjects() ([]string, error) {
	entries, err := os.ReadDir(t.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var subjects []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == t.cfg.OutputDir || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		subjects = append(subjects, e.Name())
	}
	sort.Strings(subjects)
	return subjects, nil
}
