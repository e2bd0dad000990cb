// Package plan derives the full set of artifacts a pipeline run is
// expected to produce, and resolves which of them still need building.
//
// The planner is a pure function of the kept source files and the
// analysis parameters: identical inputs yield byte-identical paths,
// and distinct parameters yield disjoint path sets, so artifacts
// computed under different settings can never overwrite each other.
package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/armlab/ulftrack/pkg/analysis"
	"github.com/armlab/ulftrack/pkg/inventory"
	"github.com/armlab/ulftrack/pkg/timerange"
)

// Kind is the closed enumeration of derived-artifact kinds.
type Kind string

const (
	// KindRaw is the per-day merged raw recording.
	KindRaw Kind = "raw"

	// KindInstantaneous is the per-day instantaneous measure series.
	KindInstantaneous Kind = "instantaneous"

	// KindAverage is the per-day windowed-average measure series.
	KindAverage Kind = "average"

	// KindSummary is a cross-day summary statistic.
	KindSummary Kind = "summary"
)

// SummaryKind names one aggregate measure family computed over all
// days at once.
type SummaryKind string

const (
	// SummaryHQ is the use-intensity profile (Hq).
	SummaryHQ SummaryKind = "hq"

	// SummaryRQ is the relative-quantity profile (Rq).
	SummaryRQ SummaryKind = "rq"

	// SummaryLI is the laterality index.
	SummaryLI SummaryKind = "li"
)

// SummaryKinds is the fixed set of summary families, in output order.
var SummaryKinds = []SummaryKind{SummaryHQ, SummaryRQ, SummaryLI}

// Subdirectory names per artifact kind under the subject output dir.
const (
	rawDir     = "raw"
	instDir    = "ulfuncinst"
	averageDir = "ulfuncavrg"
	summaryDir = "summary"
)

// Artifact is one expected derived file.
type Artifact struct {
	Path    string `json:"path"`
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`

	// Day is set for per-day artifacts; zero for summaries.
	Day time.Time `json:"-"`

	// Window and Summary are set for summary artifacts only.
	Window  int         `json:"window,omitempty"`
	Summary SummaryKind `json:"summary,omitempty"`
}

// DayPlan holds one calendar day's expected artifacts and the source
// files contributing to that day, per channel.
type DayPlan struct {
	Day       time.Time
	Sources   map[inventory.ChannelID][]inventory.SourceFile
	Artifacts []Artifact
}

// SubjectPlan is the complete expected-artifact tree for one subject.
type SubjectPlan struct {
	Subject   string
	Days      []DayPlan
	Summaries []Artifact
}

// Planner synthesizes expected artifact paths.
type Planner struct {
	// OutputRoot is the derived-data root directory.
	OutputRoot string

	// Ext is the artifact file extension, without the dot.
	Ext string
}

// Plan enumerates every calendar day spanned by the kept files and the
// expected artifacts for each, plus the cross-day summary artifacts.
//
// The day range runs from the earliest range start to the latest range
// end, both truncated to midnight, inclusive. A day's contributing
// sources are the kept files whose range touches that calendar day (by
// date, not sub-day time). With no kept files the plan has no days and
// no summaries.
func (p Planner) Plan(subject string, kept map[inventory.ChannelID][]inventory.SourceFile, params analysis.Params) SubjectPlan {
	sp := SubjectPlan{Subject: subject}

	var first, last time.Time
	for _, files := range kept {
		for _, f := range files {
			if first.IsZero() || f.Range.Start.Before(first) {
				first = f.Range.Start
			}
			if last.IsZero() || f.Range.End.After(last) {
				last = f.Range.End
			}
		}
	}
	if first.IsZero() {
		return sp
	}

	channels := make([]inventory.ChannelID, 0, len(kept))
	for ch := range kept {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	subjDir := filepath.Join(p.OutputRoot, subject)
	start := timerange.Midnight(first)
	stop := timerange.Midnight(last)

	for day := start; !day.After(stop); day = day.AddDate(0, 0, 1) {
		dp := DayPlan{
			Day:     day,
			Sources: make(map[inventory.ChannelID][]inventory.SourceFile, len(channels)),
		}
		for _, ch := range channels {
			var srcs []inventory.SourceFile
			for _, f := range kept[ch] {
				if f.Range.CoversDay(day) {
					srcs = append(srcs, f)
				}
			}
			dp.Sources[ch] = srcs
		}

		dayStr := day.Format(timerange.DayLayout)
		dp.Artifacts = []Artifact{
			{
				Kind:    KindRaw,
				Subject: subject,
				Day:     day,
				Path: filepath.Join(subjDir, rawDir,
					fmt.Sprintf("%s_%s_raw.%s", subject, dayStr, p.Ext)),
			},
			{
				Kind:    KindInstantaneous,
				Subject: subject,
				Day:     day,
				Path: filepath.Join(subjDir, instDir,
					fmt.Sprintf("%s_%s_%s_ulfuncinst.%s",
						subject, dayStr, params.RateFragment(), p.Ext)),
			},
			{
				Kind:    KindAverage,
				Subject: subject,
				Day:     day,
				Path: filepath.Join(subjDir, averageDir,
					fmt.Sprintf("%s_%s_%s_%s_ulfuncavrg.%s",
						subject, dayStr, params.RateFragment(), params.AvgFragment(), p.Ext)),
			},
		}
		sp.Days = append(sp.Days, dp)
	}

	windows := params.Normalize().SummaryWindows
	fragments := params.SummaryFragments()
	for _, kind := range SummaryKinds {
		for i, frag := range fragments {
			sp.Summaries = append(sp.Summaries, Artifact{
				Kind:    KindSummary,
				Subject: subject,
				Window:  windows[i],
				Summary: kind,
				Path: filepath.Join(subjDir, summaryDir,
					fmt.Sprintf("%s_%s_%s_%s_summary_%s.%s",
						subject, params.RateFragment(), params.AvgFragment(), frag, kind, p.Ext)),
			})
		}
	}

	return sp
}
