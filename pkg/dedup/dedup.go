// Package dedup resolves source files whose time ranges overlap.
//
// Overlapping exports indicate duplicated or corrupted sensor data:
// the same wear period must not be counted twice. Resolution is
// deterministic and order-dependent: the first file in discovery order
// always wins. Callers that want a different tie-break reorder
// discovery; the resolver never inspects file size, content, or
// modification time.
package dedup

import (
	"github.com/armlab/ulftrack/pkg/inventory"
	"github.com/armlab/ulftrack/pkg/timerange"
)

// Flagged is a source file annotated with its overlap partners and the
// keep/discard decision.
type Flagged struct {
	File inventory.SourceFile

	// Overlaps holds the indices of later files (discovery order)
	// whose ranges intersect this file's range.
	Overlaps []int

	// Keep is false when the file was discarded in favor of an
	// earlier overlapping file.
	Keep bool
}

// Conflict names one group of files with overlapping timestamps, for
// the run log.
type Conflict struct {
	// Path is the earlier (kept) file.
	Path string

	// With are the later files it overlaps.
	With []string
}

// Result is the resolver output for one channel's file list.
type Result struct {
	Files []Flagged

	// Conflicts lists every overlap group found, in discovery order.
	Conflicts []Conflict

	// Discarded lists the paths of files that will not be processed.
	Discarded []string
}

// Resolve walks one channel's files in discovery order and decides
// which to keep. A kept file discards every later file it overlaps; a
// file already discarded is skipped entirely, so it can neither
// discard nor rescue another. Files with no overlaps are always kept.
//
// The tie-break is provisional by design: first in discovery order
// wins. TODO: revisit once exports carry a device-side sequence number
// that could identify the authoritative file.
//
// Returns timerange.ErrInverted if any file carries an inverted range.
func Resolve(files []inventory.SourceFile) (Result, error) {
	ranges := make([]timerange.Range, len(files))
	for i, f := range files {
		ranges[i] = f.Range
	}

	overlaps, err := timerange.Overlapping(ranges)
	if err != nil {
		return Result{}, err
	}

	res := Result{Files: make([]Flagged, len(files))}
	for i, f := range files {
		res.Files[i] = Flagged{File: f, Overlaps: overlaps[i], Keep: true}

		if len(overlaps[i]) == 0 {
			continue
		}
		with := make([]string, len(overlaps[i]))
		for k, j := range overlaps[i] {
			with[k] = files[j].Path
		}
		res.Conflicts = append(res.Conflicts, Conflict{Path: f.Path, With: with})
	}

	for i := range res.Files {
		if !res.Files[i].Keep {
			continue
		}
		for _, j := range res.Files[i].Overlaps {
			if res.Files[j].Keep {
				res.Files[j].Keep = false
				res.Discarded = append(res.Discarded, res.Files[j].File.Path)
			}
		}
	}

	return res, nil
}

// Kept returns the kept files in discovery order. Discarded files
// propagate no further through the pipeline.
func (r Result) Kept() []inventory.SourceFile {
	var out []inventory.SourceFile
	for _, f := range r.Files {
		if f.Keep {
			out = append(out, f.File)
		}
	}
	return out
}
