// Package output provides JSONL output for tracker runs.
//
// Output is structured as typed record envelopes containing work
// items, run-log entries, and a final session summary. Each line is a
// self-contained JSON object that downstream collaborators (the
// pipeline executor, dashboards) can parse independently.
package output

import (
	"encoding/json"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: ulftrack.<type>.v<version>
const (
	// TypeWorkItem identifies expected-artifact records.
	TypeWorkItem = "ulftrack.workitem.v1"

	// TypeLogEntry identifies run-log records.
	TypeLogEntry = "ulftrack.log.v1"

	// TypeSummary identifies the final session summary record.
	TypeSummary = "ulftrack.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "ulftrack.workitem.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created.
	TS time.Time `json:"ts"`

	// SessionID is the correlation ID for this tracker run.
	SessionID string `json:"session_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// WorkItemRecord is the data payload for one expected artifact.
type WorkItemRecord struct {
	// Subject is the source-data partition the artifact belongs to.
	Subject string `json:"subject"`

	// Path is the artifact's deterministic output path.
	Path string `json:"path"`

	// Kind is the artifact kind (raw, instantaneous, average, summary).
	Kind string `json:"kind"`

	// Day is the artifact's calendar day, empty for summaries.
	Day string `json:"day,omitempty"`

	// NeedsBuild is true when the artifact is absent on disk.
	NeedsBuild bool `json:"needs_build"`

	// Sources are the contributing source-file paths.
	Sources []string `json:"sources,omitempty"`
}

// LogEntryRecord is the data payload for one run-log line.
type LogEntryRecord struct {
	Entry string `json:"entry"`
}

// SummaryRecord is the data payload for the final session summary.
type SummaryRecord struct {
	// AnalysisKey is the canonical digest of the effective analysis
	// parameters, correlating this session's artifacts to their
	// parameter version.
	AnalysisKey string `json:"analysis_key"`

	// Subjects is the number of subjects with planned work.
	Subjects int `json:"subjects"`

	// Artifacts is the total expected artifact count.
	Artifacts int `json:"artifacts"`

	// Pending is the number of artifacts that need building.
	Pending int `json:"pending"`

	// LogEntries is the number of accumulated run-log entries.
	LogEntries int `json:"log_entries"`

	// Duration is the wall-clock session duration.
	Duration time.Duration `json:"duration"`

	// DurationHuman is Duration in human-readable form.
	DurationHuman string `json:"duration_human"`

	// Journal is the committed journal path, empty on dry runs.
	Journal string `json:"journal,omitempty"`
}
