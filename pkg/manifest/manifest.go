// Package manifest provides loading and validation of ulftrack study manifests.
//
// A study manifest is a YAML or JSON file that configures one tracker run:
// the data directory layout, the sensor channels to inventory, and the
// analysis parameters keying every derived artifact.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	study:
//	  data_dir: /data/ulf-study
//	sensor:
//	  name: wrist-accel
//	  channels: ["L", "R"]
//	analysis:
//	  inst_rate: 1.0
//	  avg_window: 60.0
//	  avg_shift: 15.0
//	  summary_windows: [7, 14]
package manifest

import (
	"fmt"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/inventory"
)

// Manifest represents a validated study manifest.
//
// Required fields are Version, Study, Sensor, and Analysis. Scan is
// optional with sensible defaults.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.armlab.dev/ulftrack/v1.0.0/study-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Study configures the data directory layout.
	Study StudyConfig `json:"study" yaml:"study"`

	// Sensor configures the sensor exports to inventory.
	Sensor SensorConfig `json:"sensor" yaml:"sensor"`

	// Analysis configures the analysis parameters.
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Scan configures scanner behavior (optional).
	Scan ScanConfig `json:"scan,omitempty" yaml:"scan,omitempty"`
}

// StudyConfig configures the data directory layout.
type StudyConfig struct {
	// DataDir is the study data root. Each immediate subdirectory
	// (except OutputDir) holds one subject's sensor exports.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// OutputDir is the derived-data subdirectory name under DataDir.
	// Default: "ulfout".
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
}

// SensorConfig configures the sensor exports to inventory.
type SensorConfig struct {
	// Name is a free-form sensor/device label. Optional, informational.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Extension is the export file extension without the leading dot.
	// Default: "csv".
	Extension string `json:"extension,omitempty" yaml:"extension,omitempty"`

	// Channels are the sensor placement identifiers to inventory.
	// Each channel matches files named "*<channel>*.<extension>".
	// At least one channel is required.
	Channels []string `json:"channels" yaml:"channels"`
}

// AnalysisConfig configures the analysis parameters.
type AnalysisConfig struct {
	// InstRate is the instantaneous-measure sample rate in Hz.
	InstRate float64 `json:"inst_rate" yaml:"inst_rate"`

	// AvgWindow is the averaging window duration in minutes.
	AvgWindow float64 `json:"avg_window" yaml:"avg_window"`

	// AvgShift is the averaging window shift in minutes.
	AvgShift float64 `json:"avg_shift" yaml:"avg_shift"`

	// SummaryWindows are the summary window sizes in days.
	// At least one window is required.
	SummaryWindows []int `json:"summary_windows" yaml:"summary_windows"`
}

// ScanConfig configures scanner behavior.
//
// All fields are optional with sensible defaults applied during loading.
type ScanConfig struct {
	// Concurrency is the number of parallel sensor-reader invocations.
	// Range: 1-32. Default: 4.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// RateLimit is the maximum reader invocations per second
	// (0 = unlimited). Default: 0.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// LockTimeout bounds the wait for the journal lock, as a duration
	// string ("30s", "2m"). Default: "30s".
	LockTimeout string `json:"lock_timeout,omitempty" yaml:"lock_timeout,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultOutputDir is the default derived-data subdirectory name.
	DefaultOutputDir = "ulfout"

	// DefaultExtension is the default sensor export file extension.
	DefaultExtension = "csv"

	// DefaultConcurrency is the default number of parallel reader calls.
	DefaultConcurrency = 4

	// DefaultRateLimit is the default reader rate limit (0 = unlimited).
	DefaultRateLimit = 0.0

	// DefaultLockTimeout is the default journal lock wait bound.
	DefaultLockTimeout = "30s"
)

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest to ensure
// all optional fields have sensible values.
func (m *Manifest) ApplyDefaults() {
	if m.Study.OutputDir == "" {
		m.Study.OutputDir = DefaultOutputDir
	}
	if m.Sensor.Extension == "" {
		m.Sensor.Extension = DefaultExtension
	}
	if m.Scan.Concurrency == 0 {
		m.Scan.Concurrency = DefaultConcurrency
	}
	// RateLimit: 0 is a valid value (unlimited), so no default needed
	if m.Scan.LockTimeout == "" {
		m.Scan.LockTimeout = DefaultLockTimeout
	}
}

// Channels returns the inventory channels derived from the sensor
// configuration, one per placement, each with its fixed glob pattern.
func (m *Manifest) Channels() []inventory.Channel {
	channels := make([]inventory.Channel, len(m.Sensor.Channels))
	for i, id := range m.Sensor.Channels {
		channels[i] = inventory.Channel{
			ID:      inventory.ChannelID(id),
			Pattern: fmt.Sprintf("*%s*.%s", id, m.Sensor.Extension),
		}
	}
	return channels
}

// Params returns the analysis parameters as the key type the planner
// and journal operate on.
func (m *Manifest) Params() analysis.Params {
	return analysis.Params{
		InstRate:       m.Analysis.InstRate,
		AvgWindow:      m.Analysis.AvgWindow,
		AvgShift:       m.Analysis.AvgShift,
		SummaryWindows: m.Analysis.SummaryWindows,
	}
}
