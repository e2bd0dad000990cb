package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for tracker results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a single
// line of JSON followed by a newline.
type Writer interface {
	// WriteWorkItem emits an expected-artifact record.
	WriteWorkItem(ctx context.Context, item *WorkItemRecord) error

	// WriteLogEntry emits a run-log record.
	WriteLogEntry(ctx context.Context, entry *LogEntryRecord) error

	// WriteSummary emits the final session summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w         io.Writer
	sessionID string
	mu        sync.Mutex
	closed    bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - sessionID: Correlation ID for this tracker run
func NewJSONLWriter(w io.Writer, sessionID string) *JSONLWriter {
	return &JSONLWriter{w: w, sessionID: sessionID}
}

// WriteWorkItem emits an expected-artifact record.
func (jw *JSONLWriter) WriteWorkItem(ctx context.Context, item *WorkItemRecord) error {
	return jw.writeRecord(ctx, TypeWorkItem, item)
}

// WriteLogEntry emits a run-log record.
func (jw *JSONLWriter) WriteLogEntry(ctx context.Context, entry *LogEntryRecord) error {
	return jw.writeRecord(ctx, TypeLogEntry, entry)
}

// WriteSummary emits the final session summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer closed. The underlying io.Writer is owned by
// the caller and is not closed here.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	rec := Record{
		Type:      recordType,
		TS:        time.Now().UTC(),
		SessionID: jw.sessionID,
		Data:      data,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return io.ErrClosedPipe
	}
	_, err = jw.w.Write(line)
	return err
}
