package plan

import (
	"os"
	"sort"
	"time"

	"github.com/armlab/ulftrack/pkg/inventory"
)

// WorkItem flags one expected artifact for the pipeline executor.
// NeedsBuild is true iff the artifact's path does not exist on disk.
// Existence is the sole staleness signal: no content hashing, no
// modification-time comparison.
type WorkItem struct {
	Artifact   Artifact
	Sources    []inventory.SourceFile
	NeedsBuild bool
}

// DayWork is one day's resolved work items plus the per-channel source
// associations, passed through from the plan unchanged.
type DayWork struct {
	Day     time.Time
	Sources map[inventory.ChannelID][]inventory.SourceFile
	Items   []WorkItem
}

// SubjectWork is the fully resolved work tree for one subject. The
// whole tree is always returned, built or not; callers filter with
// Pending to know what to execute, while collaborators that list what
// should exist read the tree directly.
type SubjectWork struct {
	Subject string
	Days    []DayWork
	Summary []WorkItem
}

// Resolve compares a subject plan against the filesystem and produces
// the work tree. Each per-day item carries the day's contributing
// sources flattened in channel order; summary items carry no sources.
func Resolve(sp SubjectPlan) SubjectWork {
	work := SubjectWork{Subject: sp.Subject}

	for _, dp := range sp.Days {
		dw := DayWork{Day: dp.Day, Sources: dp.Sources}

		flat := flattenSources(dp.Sources)
		for _, a := range dp.Artifacts {
			dw.Items = append(dw.Items, WorkItem{
				Artifact:   a,
				Sources:    flat,
				NeedsBuild: !exists(a.Path),
			})
		}
		work.Days = append(work.Days, dw)
	}

	for _, a := range sp.Summaries {
		work.Summary = append(work.Summary, WorkItem{
			Artifact:   a,
			NeedsBuild: !exists(a.Path),
		})
	}

	return work
}

// Pending returns every work item whose artifact is missing on disk.
func (w SubjectWork) Pending() []WorkItem {
	var out []WorkItem
	for _, dw := range w.Days {
		for _, item := range dw.Items {
			if item.NeedsBuild {
				out = append(out, item)
			}
		}
	}
	for _, item := range w.Summary {
		if item.NeedsBuild {
			out = append(out, item)
		}
	}
	return out
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func flattenSources(sources map[inventory.ChannelID][]inventory.SourceFile) []inventory.SourceFile {
	channels := make([]inventory.ChannelID, 0, len(sources))
	for ch := range sources {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	var out []inventory.SourceFile
	for _, ch := range channels {
		out = append(out, sources[ch]...)
	}
	return out
}
