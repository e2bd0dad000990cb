package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armlab/ulftrack/pkg/timerange"
)

// fakeReader returns canned ranges and counts invocations per path.
type fakeReader struct {
	mu     sync.Mutex
	ranges map[string]timerange.Range
	calls  map[string]int
	err    error
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		ranges: make(map[string]timerange.Range),
		calls:  make(map[string]int),
	}
}

func (f *fakeReader) ReadRange(ctx context.Context, path string) (timerange.Range, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[filepath.Base(path)]++
	if f.err != nil {
		return timerange.Range{}, f.err
	}
	r, ok := f.ranges[filepath.Base(path)]
	if !ok {
		return timerange.Range{}, errors.New("no such file")
	}
	return r, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]timerange.Range
}

func newMapCache() *mapCache {
	return &mapCache{m: make(map[string]timerange.Range)}
}

func (c *mapCache) Lookup(path string) (timerange.Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[path]
	return r, ok
}

func (c *mapCache) Store(path string, r timerange.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[path] = r
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func span(h1, h2 int) timerange.Range {
	return timerange.Range{
		Start: time.Date(2024, 1, 1, h1, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, h2, 0, 0, 0, time.UTC),
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	channels := []Channel{
		{ID: "R", Pattern: "*R*.csv"},
		{ID: "L", Pattern: "*L*.csv"},
	}

	t.Run("discovers per channel", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "subj_R_01.csv", "subj_R_02.csv", "subj_L_01.csv", "notes.txt")

		reader := newFakeReader()
		reader.ranges["subj_R_01.csv"] = span(8, 10)
		reader.ranges["subj_R_02.csv"] = span(11, 12)
		reader.ranges["subj_L_01.csv"] = span(8, 9)

		s := NewScanner(reader, newMapCache(), DefaultConfig(), nil)
		got, err := s.Scan(ctx, dir, channels)
		require.NoError(t, err)

		require.Len(t, got["R"], 2)
		require.Len(t, got["L"], 1)
		assert.Equal(t, filepath.Join(dir, "subj_R_01.csv"), got["R"][0].Path)
		assert.Equal(t, ChannelID("R"), got["R"][0].Channel)
		assert.Equal(t, span(8, 10), got["R"][0].Range)
		assert.Equal(t, span(8, 9), got["L"][0].Range)
	})

	t.Run("cache hit bypasses reader", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "subj_R_01.csv")

		reader := newFakeReader()
		reader.ranges["subj_R_01.csv"] = span(8, 10)
		cache := newMapCache()

		// Two scans sharing one cache: the reader runs exactly once.
		s1 := NewScanner(reader, cache, DefaultConfig(), nil)
		_, err := s1.Scan(ctx, dir, channels)
		require.NoError(t, err)

		s2 := NewScanner(reader, cache, DefaultConfig(), nil)
		got, err := s2.Scan(ctx, dir, channels)
		require.NoError(t, err)

		assert.Equal(t, 1, reader.calls["subj_R_01.csv"])
		assert.Equal(t, span(8, 10), got["R"][0].Range)
	})

	t.Run("unreadable file is fatal", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "subj_R_01.csv")

		reader := newFakeReader()
		reader.err = errors.New("truncated export")

		s := NewScanner(reader, newMapCache(), DefaultConfig(), nil)
		_, err := s.Scan(ctx, dir, channels)
		require.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("inverted reader range is fatal", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "subj_R_01.csv")

		reader := newFakeReader()
		reader.ranges["subj_R_01.csv"] = timerange.Range{
			Start: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		s := NewScanner(reader, newMapCache(), DefaultConfig(), nil)
		_, err := s.Scan(ctx, dir, channels)
		require.ErrorIs(t, err, ErrUnreadable)
		require.ErrorIs(t, err, timerange.ErrInverted)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		s := NewScanner(newFakeReader(), newMapCache(), DefaultConfig(), nil)
		_, err := s.Scan(ctx, t.TempDir(), []Channel{{ID: "X", Pattern: "[unclosed"}})
		require.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("empty directory", func(t *testing.T) {
		s := NewScanner(newFakeReader(), newMapCache(), DefaultConfig(), nil)
		got, err := s.Scan(ctx, t.TempDir(), channels)
		require.NoError(t, err)
		assert.Empty(t, got["R"])
		assert.Empty(t, got["L"])
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		dir := t.TempDir()
		names := []string{"a_R_1.csv", "b_R_2.csv", "c_R_3.csv", "d_R_4.csv", "e_R_5.csv"}
		writeFiles(t, dir, names...)

		reader := newFakeReader()
		for _, n := range names {
			reader.ranges[n] = span(8, 10)
		}

		s := NewScanner(reader, newMapCache(), Config{Concurrency: 2}, nil)
		got, err := s.Scan(ctx, dir, []Channel{{ID: "R", Pattern: "*R*.csv"}})
		require.NoError(t, err)
		require.Len(t, got["R"], 5)
		for _, sf := range got["R"] {
			assert.True(t, sf.Range.Valid())
		}
	})
}
