package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armlab/ulftrack/pkg/journal"
	"github.com/armlab/ulftrack/pkg/output"
)

// studyFixture builds a data directory with one subject and two clean
// right-wrist exports, plus a manifest pointing at it. Returns the
// manifest path and the data dir.
func studyFixture(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	subjDir := filepath.Join(dataDir, "subj01")
	require.NoError(t, os.MkdirAll(subjDir, 0o755))

	exports := map[string]string{
		"w1_R_1.csv": "" +
			"2024-01-01 10:00:00.000000,0.1\n" +
			"2024-01-01 11:00:00.000000,0.2\n",
		"w1_R_2.csv": "" +
			"2024-01-01 12:00:00.000000,0.1\n" +
			"2024-01-02 02:00:00.000000,0.2\n",
	}
	for name, content := range exports {
		require.NoError(t, os.WriteFile(filepath.Join(subjDir, name), []byte(content), 0o644))
	}

	manifestPath := filepath.Join(root, "study.yaml")
	manifestYAML := fmt.Sprintf(`version: "1.0"
study:
  data_dir: %s
sensor:
  channels: ["R"]
analysis:
  inst_rate: 1.0
  avg_window: 60.0
  avg_shift: 15.0
  summary_windows: [7]
`, dataDir)
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifestYAML), 0o644))
	return manifestPath, dataDir
}

func decodeRecords(t *testing.T, path string) []output.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var records []output.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func countByType(records []output.Record) map[string]int {
	counts := map[string]int{}
	for _, r := range records {
		counts[r.Type]++
	}
	return counts
}

func TestRunScan(t *testing.T) {
	manifestPath, dataDir := studyFixture(t)
	outPath := filepath.Join(t.TempDir(), "session.jsonl")

	scanStudyPath = manifestPath
	scanOutput = outPath
	scanCmd.SetContext(context.Background())

	require.NoError(t, runScan(scanCmd, nil))

	records := decodeRecords(t, outPath)
	require.NotEmpty(t, records)
	counts := countByType(records)

	// 2 days x 3 artifacts + 3 summary kinds x 1 window.
	assert.Equal(t, 9, counts[output.TypeWorkItem])
	assert.Equal(t, 1, counts[output.TypeSummary])

	// All records share the session ID.
	for _, r := range records {
		assert.Equal(t, records[0].SessionID, r.SessionID)
	}

	// The summary names the committed journal and the parameter digest.
	var sum output.SummaryRecord
	require.NoError(t, json.Unmarshal(records[len(records)-1].Data, &sum))
	assert.Equal(t, 9, sum.Artifacts)
	assert.Equal(t, 9, sum.Pending)
	assert.NotEmpty(t, sum.Journal)
	assert.NotEmpty(t, sum.AnalysisKey)

	// The journal recorded the session.
	j, err := journal.Load(filepath.Join(dataDir, "ulfout", journal.Filename))
	require.NoError(t, err)
	assert.Len(t, j.SessionKeys(), 1)
}

func TestRunScanInvalidManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "9.9"`), 0o644))

	scanStudyPath = path
	scanOutput = ""
	scanCmd.SetContext(context.Background())

	err := runScan(scanCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid study manifest")
}

func TestRunPlanDoesNotCommit(t *testing.T) {
	manifestPath, dataDir := studyFixture(t)
	outPath := filepath.Join(t.TempDir(), "plan.jsonl")

	planStudyPath = manifestPath
	planOutput = outPath
	planCmd.SetContext(context.Background())

	require.NoError(t, runPlan(planCmd, nil))

	counts := countByType(decodeRecords(t, outPath))
	assert.Equal(t, 9, counts[output.TypeWorkItem])

	// No journal was created, let alone a session committed.
	_, err := os.Stat(filepath.Join(dataDir, "ulfout", journal.Filename))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunHistory(t *testing.T) {
	manifestPath, _ := studyFixture(t)

	t.Run("no journal yet", func(t *testing.T) {
		historyStudyPath = manifestPath
		historyCmd.SetContext(context.Background())

		err := runHistory(historyCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No journal found")
	})

	t.Run("lists committed sessions", func(t *testing.T) {
		scanStudyPath = manifestPath
		scanOutput = filepath.Join(t.TempDir(), "session.jsonl")
		scanCmd.SetContext(context.Background())
		require.NoError(t, runScan(scanCmd, nil))

		var buf bytes.Buffer
		historyCmd.SetOut(&buf)
		defer historyCmd.SetOut(nil)

		historyStudyPath = manifestPath
		require.NoError(t, runHistory(historyCmd, nil))

		scanner := bufio.NewScanner(&buf)
		var lines []historyRecord
		for scanner.Scan() {
			var rec historyRecord
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
			lines = append(lines, rec)
		}
		require.Len(t, lines, 1)
		assert.Equal(t, 1, lines[0].Subjects)
		assert.Equal(t, []int{7}, lines[0].Params.SummaryWindows)
	})
}
