// Package analysis defines the analysis parameters whose values key
// every derived artifact.
//
// Two runs with identical parameters must produce byte-identical
// artifact paths; two runs with different parameters must never write
// over each other. The parameters therefore act both as filename
// fragments and as the identity of a session in the journal.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// Params are the analysis parameters for one run.
type Params struct {
	// InstRate is the instantaneous-measure sample rate in Hz.
	InstRate float64 `json:"inst_rate"`

	// AvgWindow is the averaging window duration in minutes.
	AvgWindow float64 `json:"avg_window"`

	// AvgShift is the averaging window shift in minutes.
	AvgShift float64 `json:"avg_shift"`

	// SummaryWindows are the summary window sizes in days. Compared
	// as a set; order in configuration is irrelevant.
	SummaryWindows []int `json:"summary_windows"`
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.InstRate <= 0 {
		return errors.New("analysis inst_rate must be positive")
	}
	if p.AvgWindow <= 0 {
		return errors.New("analysis avg_window must be positive")
	}
	if p.AvgShift <= 0 || p.AvgShift > p.AvgWindow {
		return errors.New("analysis avg_shift must be positive and no longer than avg_window")
	}
	if len(p.SummaryWindows) == 0 {
		return errors.New("at least one summary window is required")
	}
	for _, w := range p.SummaryWindows {
		if w <= 0 || w > 9999 {
			return fmt.Errorf("summary window %d out of range [1, 9999]", w)
		}
	}
	return nil
}

// Normalize returns a copy with summary windows sorted and
// deduplicated. All comparisons and digests operate on the normalized
// form.
func (p Params) Normalize() Params {
	seen := make(map[int]struct{}, len(p.SummaryWindows))
	windows := make([]int, 0, len(p.SummaryWindows))
	for _, w := range p.SummaryWindows {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		windows = append(windows, w)
	}
	sort.Ints(windows)
	p.SummaryWindows = windows
	return p
}

// Equal reports whether two parameter sets are the same analysis key.
// Summary windows are compared as sets.
func (p Params) Equal(o Params) bool {
	a, b := p.Normalize(), o.Normalize()
	if a.InstRate != b.InstRate || a.AvgWindow != b.AvgWindow || a.AvgShift != b.AvgShift {
		return false
	}
	if len(a.SummaryWindows) != len(b.SummaryWindows) {
		return false
	}
	for i := range a.SummaryWindows {
		if a.SummaryWindows[i] != b.SummaryWindows[i] {
			return false
		}
	}
	return true
}

// SameMeasures reports whether the rate and averaging parameters
// match, ignoring summary windows. Sessions with the same measures are
// the same logical key; a later run may extend the window set.
func (p Params) SameMeasures(o Params) bool {
	return p.InstRate == o.InstRate && p.AvgWindow == o.AvgWindow && p.AvgShift == o.AvgShift
}

// Merge unions the summary windows of two parameter sets with equal
// measures. The receiver's measures win; windows come out normalized.
func (p Params) Merge(o Params) Params {
	merged := p
	merged.SummaryWindows = append(append([]int{}, p.SummaryWindows...), o.SummaryWindows...)
	return merged.Normalize()
}

// RateFragment is the filename fragment carrying the instantaneous
// sample rate, e.g. "sr1.00".
func (p Params) RateFragment() string {
	return fmt.Sprintf("sr%0.2f", p.InstRate)
}

// AvgFragment is the filename fragment carrying the averaging window,
// e.g. "avg60.00-15.00".
func (p Params) AvgFragment() string {
	return fmt.Sprintf("avg%0.2f-%0.2f", p.AvgWindow, p.AvgShift)
}

// SummaryFragments are the filename fragments for each summary window
// in normalized order, e.g. "summ0007".
func (p Params) SummaryFragments() []string {
	n := p.Normalize()
	out := make([]string, len(n.SummaryWindows))
	for i, w := range n.SummaryWindows {
		out[i] = fmt.Sprintf("summ%04d", w)
	}
	return out
}

// Key derives the canonical digest of the parameters: RFC 8785
// canonical JSON of the normalized struct, sha256, hex. Stable across
// field ordering and window permutations.
func (p Params) Key() (string, error) {
	b, err := json.Marshal(p.Normalize())
	if err != nil {
		return "", fmt.Errorf("marshal analysis params: %w", err)
	}
	canonical, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("canonicalize analysis params: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
