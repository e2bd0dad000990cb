// Package journal persists the tracker's cross-run state: the
// file-time cache and the append-only session history.
//
// Both live in one JSON document at a fixed path under the data
// directory's output subdirectory. The document is loaded at run
// start, mutated in memory, and written back whole at run end via a
// temp file and atomic rename. Session records are only ever added;
// prior sessions are read back and rewritten unchanged.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/plan"
	"github.com/armlab/ulftrack/pkg/timerange"
)

// Filename is the journal's fixed name under the output directory.
const Filename = "bookkeeping.json"

// dayKeyLayout formats the per-day keys inside session records.
const dayKeyLayout = "2006-01-02"

// ErrCorrupt marks a journal that exists but cannot be parsed. A
// missing history or filetimes key is tolerated (substituted empty);
// anything else is fatal for the whole run.
var ErrCorrupt = errors.New("journal file is corrupt")

// Session is one immutable run record.
type Session struct {
	// Key is the canonical digest of Params (analysis.Params.Key),
	// correlating sessions and artifacts across runs.
	Key      string                  `json:"analysis_key,omitempty"`
	Params   analysis.Params         `json:"analysis_params"`
	Subjects map[string]SubjectEntry `json:"subjects"`
}

// SubjectEntry is one subject's work plan inside a session record.
type SubjectEntry struct {
	Days    map[string]DayEntry `json:"days"`
	Summary []ItemEntry         `json:"summary,omitempty"`
}

// DayEntry records one day's source associations and work items.
type DayEntry struct {
	Sources map[string][]string `json:"sources"`
	Items   []ItemEntry         `json:"items"`
}

// ItemEntry is the serialized form of one work item.
type ItemEntry struct {
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	NeedsBuild bool   `json:"needs_build"`
}

// journalFile is the on-disk document shape. File times serialize as
// [start, end] stamp pairs in timerange.StampLayout.
type journalFile struct {
	FileTimes map[string][2]string `json:"filetimes"`
	History   map[string]Session   `json:"history"`
}

// Journal is the in-memory journal state for one run. Safe for
// concurrent cache access; it is the production inventory.TimeCache.
type Journal struct {
	path string

	mu      sync.Mutex
	times   map[string]timerange.Range
	history map[string]Session
}

// Load opens the journal at path, creating a fresh empty journal file
// if none exists. A parseable document missing the history or
// filetimes key loads with that part empty; any other parse failure
// returns ErrCorrupt.
func Load(path string) (*Journal, error) {
	j, err := read(path)
	if errors.Is(err, os.ErrNotExist) {
		j = newJournal(path)
		if err := j.Save(); err != nil {
			return nil, fmt.Errorf("create journal: %w", err)
		}
		return j, nil
	}
	return j, err
}

// Inspect opens the journal without touching the disk: a missing file
// yields an empty in-memory journal and nothing is created. Dry runs
// and read-only consumers use it.
func Inspect(path string) (*Journal, error) {
	j, err := read(path)
	if errors.Is(err, os.ErrNotExist) {
		return newJournal(path), nil
	}
	return j, err
}

func newJournal(path string) *Journal {
	return &Journal{
		path:    path,
		times:   make(map[string]timerange.Range),
		history: make(map[string]Session),
	}
}

// read parses the journal file at path. A missing file surfaces as
// os.ErrNotExist for the callers to resolve.
func read(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var doc journalFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}

	j := newJournal(path)
	for p, pair := range doc.FileTimes {
		r, err := timerange.Parse(pair[0], pair[1])
		if err != nil {
			return nil, fmt.Errorf("%w: filetimes[%s]: %w", ErrCorrupt, p, err)
		}
		j.times[p] = r
	}
	for ts, s := range doc.History {
		j.history[ts] = s
	}

	return j, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Lookup returns the cached time range for a source file.
func (j *Journal) Lookup(path string) (timerange.Range, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.times[path]
	return r, ok
}

// Store caches a source file's time range. Entries are never evicted,
// only added; a cached path whose file later disappears keeps its
// entry.
func (j *Journal) Store(path string, r timerange.Range) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.times[path] = r
}

// CacheSize returns the number of cached file times.
func (j *Journal) CacheSize() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.times)
}

// MergedParams unions the summary windows of every prior session whose
// rate and averaging parameters equal p's, so a re-run that adds
// windows extends the same logical analysis key instead of forking it.
func (j *Journal) MergedParams(p analysis.Params) analysis.Params {
	j.mu.Lock()
	defer j.mu.Unlock()

	merged := p.Normalize()
	for _, s := range j.history {
		if merged.SameMeasures(s.Params) {
			merged = merged.Merge(s.Params)
		}
	}
	return merged
}

// Append adds one session record keyed by its start timestamp.
// Existing records are never touched.
func (j *Journal) Append(startedAt time.Time, s Session) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.history[startedAt.UTC().Format(time.RFC3339)] = s
}

// SessionKeys returns the history keys in ascending order.
func (j *Journal) SessionKeys() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	keys := make([]string, 0, len(j.history))
	for k := range j.history {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SessionAt returns the session stored under the given history key.
func (j *Journal) SessionAt(key string) (Session, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, ok := j.history[key]
	return s, ok
}

// Save writes the whole journal document back to disk: temp file in
// the journal's directory, fsync, atomic rename. Not safe under
// concurrent writers; callers hold the journal lock around the whole
// load -> compute -> save sequence.
func (j *Journal) Save() error {
	j.mu.Lock()
	doc := journalFile{
		FileTimes: make(map[string][2]string, len(j.times)),
		History:   make(map[string]Session, len(j.history)),
	}
	for p, r := range j.times {
		doc.FileTimes[p] = [2]string{
			r.Start.Format(timerange.StampLayout),
			r.End.Format(timerange.StampLayout),
		}
	}
	for ts, s := range j.history {
		doc.History[ts] = s
	}
	j.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".journal-*")
	if err != nil {
		return fmt.Errorf("create journal temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close journal temp file: %w", err)
	}

	if err := os.Rename(tmpName, j.path); err != nil {
		return fmt.Errorf("replace journal: %w", err)
	}
	return nil
}

// NewSession serializes a run's work plan into a session record, with
// all dates in fixed textual formats and the parameters' canonical
// digest alongside them.
func NewSession(params analysis.Params, work []plan.SubjectWork) (Session, error) {
	key, err := params.Key()
	if err != nil {
		return Session{}, fmt.Errorf("derive analysis key: %w", err)
	}

	s := Session{
		Key:      key,
		Params:   params.Normalize(),
		Subjects: make(map[string]SubjectEntry, len(work)),
	}

	for _, sw := range work {
		entry := SubjectEntry{Days: make(map[string]DayEntry, len(sw.Days))}

		for _, dw := range sw.Days {
			de := DayEntry{Sources: make(map[string][]string, len(dw.Sources))}
			for ch, files := range dw.Sources {
				paths := make([]string, len(files))
				for i, f := range files {
					paths[i] = f.Path
				}
				de.Sources[string(ch)] = paths
			}
			for _, item := range dw.Items {
				de.Items = append(de.Items, newItemEntry(item))
			}
			entry.Days[dw.Day.Format(dayKeyLayout)] = de
		}

		for _, item := range sw.Summary {
			entry.Summary = append(entry.Summary, newItemEntry(item))
		}

		s.Subjects[sw.Subject] = entry
	}

	return s, nil
}

func newItemEntry(item plan.WorkItem) ItemEntry {
	return ItemEntry{
		Path:       item.Artifact.Path,
		Kind:       string(item.Artifact.Kind),
		NeedsBuild: item.NeedsBuild,
	}
}
