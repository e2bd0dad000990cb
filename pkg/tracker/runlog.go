package tracker

import (
	"fmt"
	"sync"
)

// ErrorType classifies recoverable error entries in the run log.
type ErrorType string

const (
	// ErrDuplicateTimestamps marks source files with overlapping
	// time ranges.
	ErrDuplicateTimestamps ErrorType = "DUPLICATE_TIMESTAMPS"

	// ErrUnreadableFile marks a source file the reader could not
	// time-bound.
	ErrUnreadableFile ErrorType = "UNREADABLE_FILE"

	// ErrInvalidTimeRange marks a file whose recorded range is
	// inverted.
	ErrInvalidTimeRange ErrorType = "INVALID_TIMERANGE"

	// ErrSubjectFailed marks a subject skipped by a scan failure.
	ErrSubjectFailed ErrorType = "SUBJECT_FAILED"
)

// WarningType classifies warning entries in the run log.
type WarningType string

const (
	// WarnIgnoringFile marks a discarded duplicate file.
	WarnIgnoringFile WarningType = "IGNORING_FILE"

	// WarnExecutorFailed marks a pipeline executor failure; the next
	// run simply retries whatever was not built.
	WarnExecutorFailed WarningType = "EXECUTOR_FAILED"
)

// RunLog accumulates every issue found during a run. Entries are
// reported to the caller at the end rather than raised as they occur,
// so one run yields a complete picture.
type RunLog struct {
	mu      sync.Mutex
	entries []string
}

// Error appends an error entry.
func (l *RunLog) Error(component string, et ErrorType, format string, args ...any) {
	l.append("ERROR", component, string(et), format, args...)
}

// Warning appends a warning entry.
func (l *RunLog) Warning(component string, wt WarningType, format string, args ...any) {
	l.append("WARNING", component, string(wt), format, args...)
}

func (l *RunLog) append(level, component, kind, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries,
		fmt.Sprintf("[%s] [%s] [%s] %s", level, component, kind, fmt.Sprintf(format, args...)))
}

// Entries returns a copy of the accumulated log.
func (l *RunLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
