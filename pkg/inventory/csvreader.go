package inventory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/armlab/ulftrack/pkg/timerange"
)

// stampLayouts are the accepted timestamp formats in export files, most
// specific first.
var stampLayouts = []string{
	timerange.StampLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// CSVReader resolves a file's time range from its first and last data
// rows. Exports are CSV files whose first column is the sample
// timestamp; a header row is skipped automatically.
//
// CSVReader is the production RangeReader for studies whose sensor
// exports are already decoded to CSV. Binary sensor formats need their
// own reader implementation.
type CSVReader struct{}

// NewCSVReader creates a CSVReader.
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// ReadRange scans the file for its first and last sample timestamps.
func (r *CSVReader) ReadRange(ctx context.Context, path string) (timerange.Range, error) {
	f, err := os.Open(path)
	if err != nil {
		return timerange.Range{}, fmt.Errorf("open export: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var (
		first    time.Time
		last     time.Time
		haveData bool
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return timerange.Range{}, err
		}

		ts, ok := parseStampField(scanner.Text())
		if !ok {
			// Header or blank line; only tolerated before data starts.
			if haveData {
				return timerange.Range{}, fmt.Errorf("unparseable row after data in %s", path)
			}
			continue
		}

		if !haveData {
			first = ts
			haveData = true
		}
		last = ts
	}
	if err := scanner.Err(); err != nil {
		return timerange.Range{}, fmt.Errorf("scan export: %w", err)
	}
	if !haveData {
		return timerange.Range{}, fmt.Errorf("no data rows in %s", path)
	}

	return timerange.New(first, last)
}

// parseStampField extracts and parses the first CSV field of a line.
func parseStampField(line string) (time.Time, bool) {
	field := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		field = line[:i]
	}
	field = strings.Trim(strings.TrimSpace(field), `"`)
	if field == "" {
		return time.Time{}, false
	}

	for _, layout := range stampLayouts {
		if ts, err := time.Parse(layout, field); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
